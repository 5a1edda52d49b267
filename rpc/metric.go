package rpc

import (
	"fmt"

	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"
)

type ResultMetrics struct {
	Metrics map[string]string `json:"metrics"`
}

// JSONMetrics returns the metrics of label, or of every module when label
// is empty.
func JSONMetrics(ctx *rpctypes.Context, label string) (*ResultMetrics, error) {
	result := &ResultMetrics{Metrics: make(map[string]string)}

	var labels []string
	if label != "" {
		if !env.MetricSet.HasMetrics(label) {
			return nil, fmt.Errorf("unknown metrics label %q", label)
		}
		labels = []string{label}
	} else {
		labels = env.MetricSet.GetAllLabels()
	}

	for _, l := range labels {
		if item := env.MetricSet.GetMetrics(l); item != nil {
			result.Metrics[l] = item.JSONString()
		}
	}
	return result, nil
}
