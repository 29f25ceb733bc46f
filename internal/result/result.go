package result

import "fmt"

// Result is the uniform envelope returned across the service boundary.
// Operations report failure here instead of leaking errors to callers.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func Ok() Result { return Result{Success: true} }

func Fail(format string, args ...any) Result {
	return Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

// ErrKind classifies a per-item failure.
type ErrKind string

const (
	KindUnmapped   ErrKind = "UNMAPPED"   // no remote counterpart for the SKU
	KindValidation ErrKind = "VALIDATION" // rejected by the remote system
	KindTransient  ErrKind = "TRANSIENT"  // network/timeout, safe to retry
)

// Item is a tagged per-item outcome: either OK or Err(kind, detail).
type Item struct {
	SKU    string  `json:"sku"`
	OK     bool    `json:"ok"`
	Kind   ErrKind `json:"kind,omitempty"`
	Detail string  `json:"detail,omitempty"`
}

func OkItem(sku string) Item { return Item{SKU: sku, OK: true} }

func ErrItem(sku string, kind ErrKind, detail string) Item {
	return Item{SKU: sku, OK: false, Kind: kind, Detail: detail}
}

// Batch aggregates per-item outcomes of one fan-out call.
type Batch struct {
	Items []Item `json:"items"`
}

func (b *Batch) Add(it Item) { b.Items = append(b.Items, it) }

func (b Batch) AllSucceeded() bool {
	for _, it := range b.Items {
		if !it.OK {
			return false
		}
	}
	return true
}

func (b Batch) PartialFailures() []Item {
	var out []Item
	for _, it := range b.Items {
		if !it.OK {
			out = append(out, it)
		}
	}
	return out
}

func (b Batch) Summary() string {
	ok := 0
	for _, it := range b.Items {
		if it.OK {
			ok++
		}
	}
	return fmt.Sprintf("%d/%d items ok", ok, len(b.Items))
}
