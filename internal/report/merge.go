package report

import "shadowprobe/internal/report/sexpr"

// Merge combines two report runs' aggregates for what a reader takes to
// be the same static instruction (same InstrAddr, per sexpr.Record's
// documented keying limitation), weighting the average error by each
// run's call count. Identity/location fields are taken from a.
func Merge(a, b *sexpr.Record) *sexpr.Record {
	total := a.NumCalls + b.NumCalls
	avg := a.AvgError
	if total > 0 {
		avg = (a.AvgError*float64(a.NumCalls) + b.AvgError*float64(b.NumCalls)) / float64(total)
	}
	maxErr := a.MaxError
	if b.MaxError > maxErr {
		maxErr = b.MaxError
	}
	return &sexpr.Record{
		Expr:      a.Expr,
		PlainName: a.PlainName,
		Function:  a.Function,
		Filename:  a.Filename,
		LineNum:   a.LineNum,
		InstrAddr: a.InstrAddr,
		AvgError:  avg,
		MaxError:  maxErr,
		NumCalls:  total,
	}
}

// MergeAll folds every record in runs (the concatenation of one or more
// report files' parsed lines) into one record per distinct InstrAddr,
// preserving first-encounter order.
func MergeAll(runs []*sexpr.Record) []*sexpr.Record {
	var order []uint64
	byAddr := make(map[uint64]*sexpr.Record)
	for _, rec := range runs {
		existing, ok := byAddr[rec.InstrAddr]
		if !ok {
			byAddr[rec.InstrAddr] = rec
			order = append(order, rec.InstrAddr)
			continue
		}
		byAddr[rec.InstrAddr] = Merge(existing, rec)
	}
	out := make([]*sexpr.Record, 0, len(order))
	for _, addr := range order {
		out = append(out, byAddr[addr])
	}
	return out
}
