package llm

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed prompts/*.txt
var promptFS embed.FS

var (
	timeframePrompt = template.Must(template.ParseFS(promptFS, "prompts/chart_timeframe.txt"))
	autoPrompt      = template.Must(template.ParseFS(promptFS, "prompts/chart_auto.txt"))
)

// BuildChartPrompt renders the instruction text sent alongside the chart image.
func BuildChartPrompt(timeframe string) (string, error) {
	timeframe = strings.TrimSpace(timeframe)
	tmpl := timeframePrompt
	if strings.EqualFold(timeframe, AutoTimeframe) {
		tmpl = autoPrompt
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, struct{ Timeframe string }{Timeframe: timeframe}); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}
