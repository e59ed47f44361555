package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/pterm/pterm"

	"github.com/weisyn/chainruntime/pkg/types"
)

const (
	outputTable = "table"
	outputJSON  = "json"
)

// renderer 按输出格式渲染结果
type renderer struct {
	out    io.Writer
	format string
}

func newRenderer(out io.Writer) renderer {
	return renderer{out: out, format: globalFlags.OutputFormat}
}

// json 以缩进 JSON 输出
func (r renderer) json(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (r renderer) header(title string) {
	fmt.Fprint(r.out, pterm.DefaultSection.Sprint(title))
}

func (r renderer) table(rows [][]string) error {
	s, err := pterm.DefaultTable.WithHasHeader().WithHeaderRowSeparator("-").WithData(rows).Srender()
	if err != nil {
		return err
	}
	fmt.Fprintln(r.out, s)
	return nil
}

// ==================== 预设 ====================

type presetView struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Config      types.RuntimeConfig `json:"config"`
}

func (r renderer) presets(views []presetView) error {
	if r.format == outputJSON {
		return r.json(views)
	}
	rows := [][]string{{"Preset", "Timeout", "Memory", "Network", "Monitoring", "Sandbox", "Max Gas", "Max Depth"}}
	for _, v := range views {
		c := v.Config
		rows = append(rows, []string{
			v.Name,
			fmt.Sprintf("%ds", c.TimeoutSeconds),
			fmt.Sprintf("%dMB", c.MemoryLimitMB),
			string(c.NetworkMode),
			fmt.Sprint(c.EnableMonitoring),
			fmt.Sprint(c.Security.SandboxEnabled),
			fmt.Sprint(c.Security.MaxGasLimit),
			fmt.Sprint(c.Security.MaxCallDepth),
		})
	}
	r.header("Runtime Presets")
	return r.table(rows)
}

// ==================== 能力 ====================

type capabilitiesView struct {
	BlockchainID string                          `json:"blockchain_id"`
	Capabilities types.RuntimeCapabilities       `json:"capabilities"`
	Metrics      []types.RuntimeMetricDefinition `json:"metrics"`
}

func (r renderer) capabilities(v capabilitiesView) error {
	if r.format == outputJSON {
		return r.json(v)
	}
	c := v.Capabilities
	r.header("Backend " + v.BlockchainID)
	if err := r.table([][]string{
		{"Capability", "Value"},
		{"Contract deployment", fmt.Sprint(c.SupportsContractDeployment)},
		{"Function calls", fmt.Sprint(c.SupportsFunctionCalls)},
		{"State inspection", fmt.Sprint(c.SupportsStateInspection)},
		{"Event monitoring", fmt.Sprint(c.SupportsEventMonitoring)},
		{"Gas estimation", fmt.Sprint(c.SupportsGasEstimation)},
		{"Time travel", fmt.Sprint(c.SupportsTimeTravel)},
		{"Max execution time", fmt.Sprintf("%ds", c.MaxExecutionTimeSeconds)},
		{"Languages", strings.Join(c.SupportedLanguages, ", ")},
	}); err != nil {
		return err
	}

	rows := [][]string{{"Metric", "Type", "Unit", "Description"}}
	for _, m := range v.Metrics {
		rows = append(rows, []string{m.Name, m.MetricType.String(), m.Unit, m.Description})
	}
	r.header("Metrics")
	return r.table(rows)
}

// ==================== 执行结果与报告 ====================

type runView struct {
	Environment types.RuntimeEnvironment `json:"environment"`
	Result      *types.ExecutionResult   `json:"result"`
	Report      *types.SecurityReport    `json:"report,omitempty"`
}

func (r renderer) run(v runView) error {
	if r.format == outputJSON {
		return r.json(v)
	}
	res := v.Result

	r.header("Execution " + res.ExecutionID)
	status := pterm.Success.Sprintln("success")
	if !res.Success {
		status = pterm.Error.Sprintln("failed: " + res.Error)
	}
	fmt.Fprint(r.out, status)

	rows := [][]string{
		{"Field", "Value"},
		{"Environment", v.Environment.EnvironmentID},
		{"Backend", v.Environment.BlockchainID},
		{"Return value", formatValue(res.ReturnValue)},
		{"Execution time", fmt.Sprintf("%dms", res.ExecutionTimeMs)},
		{"State changes", fmt.Sprint(len(res.StateChanges))},
		{"Events", fmt.Sprint(len(res.Events))},
	}
	for _, name := range sortedKeys(res.Metrics) {
		rows = append(rows, []string{"metric." + name, formatValue(res.Metrics[name])})
	}
	if err := r.table(rows); err != nil {
		return err
	}

	if v.Report != nil {
		return r.report(*v.Report)
	}
	return nil
}

func (r renderer) report(rep types.SecurityReport) error {
	r.header("Security Report")
	verdict := pterm.Success.Sprintln("passed")
	if !rep.Passed {
		highest := "-"
		if rep.HighestSeverity != nil {
			highest = rep.HighestSeverity.String()
		}
		verdict = pterm.Warning.Sprintf("%d violation(s), highest %s\n", len(rep.Violations), highest)
	}
	fmt.Fprint(r.out, verdict)

	if err := r.table([][]string{
		{"Gas used", "Memory used", "Peak depth", "External calls"},
		{fmt.Sprint(rep.GasUsed), fmt.Sprint(rep.MemoryUsed), fmt.Sprint(rep.PeakCallDepth), fmt.Sprint(rep.ExternalCalls)},
	}); err != nil {
		return err
	}
	if len(rep.Violations) == 0 {
		return nil
	}
	rows := [][]string{{"Severity", "Type", "Description"}}
	for _, v := range rep.Violations {
		rows = append(rows, []string{v.Severity.String(), string(v.Type), v.Description})
	}
	return r.table(rows)
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "-"
	case string:
		return val
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(raw)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
