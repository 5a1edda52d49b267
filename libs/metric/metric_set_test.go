package metric

import (
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockMetricItem struct {
	json string
}

func (mock *mockMetricItem) JSONString() string {
	return mock.json
}

func newTestMetric() *MetricSet {
	m := NewMetricSet()
	m.metrics["TEST"] = &mockMetricItem{json: `{"n":1}`}
	return m
}

func TestMetricSet_HasMetrics(t *testing.T) {
	metric := newTestMetric()

	assert.True(t, metric.HasMetrics("TEST"), "should contain label(TEST)")
	assert.False(t, metric.HasMetrics("FTEST"), "shouldn't contain label(FTEST)")
	assert.Nil(t, metric.GetMetrics("FTEST"))
}

func TestMetricSet_SetMetrics(t *testing.T) {
	metric := newTestMetric()

	mockItem := &mockMetricItem{json: `{}`}
	assert.Equal(t, ErrMetricLabelExist, metric.SetMetrics("TEST", mockItem), "label(TEST)不应该设置成功")
	assert.Nil(t, metric.SetMetrics("ATEST", mockItem), "label(ATEST)应该设置成功")

	assert.Equal(t, []string{"ATEST", "TEST"}, metric.GetAllLabels())
}

func TestMetricSet_JSONString(t *testing.T) {
	metric := newTestMetric()
	require.NoError(t, metric.SetMetrics("OTHER", &mockMetricItem{json: `{"m":"x"}`}))

	var decoded map[string]map[string]interface{}
	require.NoError(t, jsoniter.UnmarshalFromString(metric.JSONString(), &decoded))
	assert.EqualValues(t, 1, decoded["TEST"]["n"])
	assert.Equal(t, "x", decoded["OTHER"]["m"])
}
