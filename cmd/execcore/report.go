package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/GriffinCanCode/AgentOS/execcore/internal/capture"
	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
)

type reportFormat string

const (
	formatJSON reportFormat = "json"
	formatYAML reportFormat = "yaml"
)

func parseFormat(s string) (reportFormat, error) {
	switch strings.ToLower(s) {
	case "json":
		return formatJSON, nil
	case "yaml", "yml":
		return formatYAML, nil
	default:
		return "", fmt.Errorf("unsupported report format %q", s)
	}
}

func writeReport(w io.Writer, rep *capture.Report, format reportFormat) error {
	var (
		data []byte
		err  error
	)
	switch format {
	case formatYAML:
		data, err = yaml.Marshal(rep)
	default:
		data, err = sonic.MarshalIndent(rep, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	_, err = w.Write(data)
	return err
}
