package progress

// Record is the canonical progress unit handed to callers. Every field except
// Raw is best-effort and nil/empty when the transport did not expose it.
type Record struct {
	Percent *float64 `json:"percent,omitempty"`
	Rate    string   `json:"rate,omitempty"`
	ETA     string   `json:"eta,omitempty"`
	Bytes   *int64   `json:"bytesTransferred,omitempty"`
	Total   *int64   `json:"totalBytes,omitempty"`
	Raw     string   `json:"raw"`
}

// HasData reports whether any optional field is set.
func (r Record) HasData() bool {
	return r.Percent != nil || r.Rate != "" || r.ETA != "" || r.Bytes != nil
}

// PercentOr returns the percentage or def when absent.
func (r Record) PercentOr(def float64) float64 {
	if r.Percent == nil {
		return def
	}
	return *r.Percent
}

// BytesOr returns the byte count or def when absent.
func (r Record) BytesOr(def int64) int64 {
	if r.Bytes == nil {
		return def
	}
	return *r.Bytes
}

// Func receives records in the order they were produced.
type Func func(Record)

func float64Ptr(v float64) *float64 { return &v }
func int64Ptr(v int64) *int64       { return &v }
