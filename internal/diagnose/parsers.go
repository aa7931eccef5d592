package diagnose

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	"github.com/hochfrequenz/claude-fix-orchestrator/internal/domain"
)

// eslintParser parses `eslint --format json` output
type eslintParser struct{}

type eslintFileResult struct {
	FilePath string          `json:"filePath"`
	Messages []eslintMessage `json:"messages"`
}

type eslintMessage struct {
	RuleID   string `json:"ruleId"`
	Severity int    `json:"severity"`
	Message  string `json:"message"`
	Line     int    `json:"line"`
}

func (eslintParser) Name() string { return "eslint-json" }

func (eslintParser) Parse(stdout []byte, exitCode int) ([]domain.Diagnostic, error) {
	trimmed := bytes.TrimSpace(stdout)
	if len(trimmed) == 0 {
		if exitCode != 0 {
			return nil, fmt.Errorf("eslint exited %d with no output", exitCode)
		}
		return nil, nil
	}

	var results []eslintFileResult
	if err := json.Unmarshal(trimmed, &results); err != nil {
		return nil, fmt.Errorf("parsing eslint output: %w", err)
	}

	var diags []domain.Diagnostic
	for _, r := range results {
		for _, m := range r.Messages {
			diags = append(diags, domain.Diagnostic{
				File:    r.FilePath,
				Line:    m.Line,
				Message: m.Message,
				Rule:    m.RuleID,
			})
		}
	}
	return diags, nil
}

// tscParser parses the line-oriented output of `tsc --noEmit --pretty false`.
// Format: path(line,col): error TS1234: message
var tscLineRegex = regexp.MustCompile(`^(.+)\((\d+),\d+\): (?:error|warning) (TS\d+): (.*)$`)

type tscParser struct{}

func (tscParser) Name() string { return "tsc" }

func (tscParser) Parse(stdout []byte, exitCode int) ([]domain.Diagnostic, error) {
	var diags []domain.Diagnostic
	scanner := bufio.NewScanner(bytes.NewReader(stdout))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		matches := tscLineRegex.FindStringSubmatch(scanner.Text())
		if matches == nil {
			continue
		}
		line, _ := strconv.Atoi(matches[2])
		diags = append(diags, domain.Diagnostic{
			File:    matches[1],
			Line:    line,
			Message: matches[4],
			Rule:    matches[3],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if exitCode != 0 && len(diags) == 0 {
		return nil, fmt.Errorf("tsc exited %d but no diagnostics were parsed", exitCode)
	}
	return diags, nil
}

// golangciParser parses `golangci-lint run --out-format json` output
type golangciParser struct{}

type golangciOutput struct {
	Issues []golangciIssue `json:"Issues"`
}

type golangciIssue struct {
	FromLinter string      `json:"FromLinter"`
	Text       string      `json:"Text"`
	Pos        golangciPos `json:"Pos"`
}

type golangciPos struct {
	Filename string `json:"Filename"`
	Line     int    `json:"Line"`
}

func (golangciParser) Name() string { return "golangci-lint" }

func (golangciParser) Parse(stdout []byte, exitCode int) ([]domain.Diagnostic, error) {
	trimmed := bytes.TrimSpace(stdout)
	if len(trimmed) == 0 {
		if exitCode != 0 {
			return nil, fmt.Errorf("golangci-lint exited %d with no output", exitCode)
		}
		return nil, nil
	}

	var output golangciOutput
	if err := json.Unmarshal(trimmed, &output); err != nil {
		return nil, fmt.Errorf("parsing golangci-lint output: %w", err)
	}

	var diags []domain.Diagnostic
	for _, issue := range output.Issues {
		diags = append(diags, domain.Diagnostic{
			File:    issue.Pos.Filename,
			Line:    issue.Pos.Line,
			Message: issue.Text,
			Rule:    issue.FromLinter,
		})
	}
	return diags, nil
}
