package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/chainruntime/internal/app/version"
	"github.com/weisyn/chainruntime/pkg/types"
)

// execute 以给定参数运行根命令并返回标准输出
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	pterm.DisableStyling()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// writeConfig 写入测试用配置：临时数据目录、日志输出到 stderr
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf("data_dir: %s\nlog:\n  file_path: stderr\n", dir)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestPresetsCommand_JSON(t *testing.T) {
	out, err := execute(t, "presets", "-o", "json")
	require.NoError(t, err)

	var views []presetView
	require.NoError(t, json.Unmarshal([]byte(out), &views))
	require.Len(t, views, len(types.PresetNames))
	for i, name := range types.PresetNames {
		assert.Equal(t, name, views[i].Name)
		assert.NotEmpty(t, views[i].Description)
	}
}

func TestPresetsCommand_Table(t *testing.T) {
	out, err := execute(t, "presets")
	require.NoError(t, err)
	assert.Contains(t, out, "Runtime Presets")
	for _, name := range types.PresetNames {
		assert.Contains(t, out, name)
	}
}

// TestRootCommand_RejectsOutputFormat 未知输出格式在执行前被拒绝
func TestRootCommand_RejectsOutputFormat(t *testing.T) {
	_, err := execute(t, "presets", "-o", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xml")
}

func TestCapabilitiesCommand(t *testing.T) {
	out, err := execute(t, "capabilities", "-c", writeConfig(t), "--backend", "simulator", "-o", "json")
	require.NoError(t, err)

	var view capabilitiesView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, "simulator", view.BlockchainID)
	assert.Contains(t, view.Capabilities.SupportedLanguages, "trace-json")
	assert.Len(t, view.Metrics, 4)
}

func TestRunCommand_ReportsViolations(t *testing.T) {
	program := filepath.Join(t.TempDir(), "program.json")
	require.NoError(t, os.WriteFile(program, []byte(`{"functions": {"main": [
		{"op": "gas", "amount": 2000000000},
		{"op": "return", "value": 7}
	]}}`), 0o600))

	out, err := execute(t, "run", program, "-c", writeConfig(t), "--backend", "simulator", "-o", "json")
	require.NoError(t, err)

	var view runView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	require.NotNil(t, view.Result)
	assert.True(t, view.Result.Success)
	assert.EqualValues(t, 7, view.Result.ReturnValue)
	assert.Equal(t, "simulator", view.Environment.BlockchainID)

	require.NotNil(t, view.Report, "执行后应能查到安全报告")
	assert.False(t, view.Report.Passed)
	assert.Equal(t, 1, view.Report.CountByType[types.ViolationGasLimitExceeded])
}

func TestRunCommand_UnknownPreset(t *testing.T) {
	program := filepath.Join(t.TempDir(), "program.json")
	require.NoError(t, os.WriteFile(program, []byte(`{"functions": {"main": []}}`), 0o600))

	_, err := execute(t, "run", program, "-c", writeConfig(t), "--backend", "simulator", "--preset", "staging")
	assert.ErrorIs(t, err, types.ErrInvalidRuntimeConfig)
}

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"args=[1,2]", "name=alice", "flag=true", "empty="})
	require.NoError(t, err)
	assert.Equal(t, []any{float64(1), float64(2)}, params["args"])
	assert.Equal(t, "alice", params["name"])
	assert.Equal(t, true, params["flag"])
	assert.Equal(t, "", params["empty"])

	_, err = parseParams([]string{"novalue"})
	assert.Error(t, err)
	_, err = parseParams([]string{"=1"})
	assert.Error(t, err)

	params, err = parseParams(nil)
	require.NoError(t, err)
	assert.Nil(t, params)
}

func TestRenderer_ReportTable(t *testing.T) {
	pterm.DisableStyling()
	var out bytes.Buffer
	r := renderer{out: &out, format: outputTable}

	critical := types.SeverityCritical
	require.NoError(t, r.report(types.SecurityReport{
		HighestSeverity: &critical,
		Violations: []types.SecurityViolation{
			{Type: types.ViolationReentrancyAttack, Severity: types.SeverityCritical, Description: "reentrant call"},
		},
	}))
	assert.Contains(t, out.String(), "1 violation(s)")
	assert.Contains(t, out.String(), "reentrant call")
}

func TestReadAppConfig_Profile(t *testing.T) {
	t.Setenv("CHAINRUNTIME_CONFIG_PATH", "")
	defer func() { globalFlags = GlobalFlags{} }()

	globalFlags = GlobalFlags{Profile: "development"}
	cfg, err := readAppConfig()
	require.NoError(t, err)
	require.NotNil(t, cfg.Runtime)
	assert.Equal(t, types.PresetLocalDevelopment, *cfg.Runtime.Preset)
	assert.Equal(t, "simulator", *cfg.Backend.Kind)

	globalFlags = GlobalFlags{Profile: "production"}
	cfg, err = readAppConfig()
	require.NoError(t, err)
	assert.Equal(t, types.PresetProduction, *cfg.Runtime.Preset)
	assert.Equal(t, "wasm", *cfg.Backend.Kind)
	require.NotNil(t, cfg.Runtime.CodeRoot)
	assert.Equal(t, "./data/prod/programs", *cfg.Runtime.CodeRoot)

	globalFlags = GlobalFlags{Profile: "staging"}
	_, err = readAppConfig()
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, version.GetVersion())

	out, err = execute(t, "version", "-o", "json")
	require.NoError(t, err)
	var info version.BuildInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, version.GetVersion(), info.Version)
	assert.NotEmpty(t, info.Platform)
}
