package metric

// MetricItem - 一个独立的metric模块对应一个MetricItem
type MetricItem interface {
	JSONString() string
}

// JSONFunc adapts a function that renders fresh metrics on every call.
type JSONFunc func() string

func (f JSONFunc) JSONString() string {
	return f()
}
