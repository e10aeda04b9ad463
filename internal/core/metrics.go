package core

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// RatePer is the population base of a crime rate.
const RatePer = 100000.0

// Rate is count/population*RatePer. It is undefined when the population is
// not positive or the count is missing; it is never coerced to zero.
func Rate(obs TidyObservation) Optional {
	return rateOf(countValue(obs.Count), float64(obs.Population))
}

func rateOf(count Optional, population float64) Optional {
	if !count.Valid || population <= 0 {
		return Optional{}
	}
	return Optional{Value: count.Value / population * RatePer, Valid: true}
}

func countValue(c Count) Optional {
	if !c.Valid {
		return Optional{}
	}
	return Optional{Value: float64(c.Value), Valid: true}
}

// ObservationRows turns each observation into a MetricRow keyed by district,
// category and year.
func ObservationRows(obs []TidyObservation) []MetricRow {
	out := make([]MetricRow, len(obs))
	for i, o := range obs {
		out[i] = MetricRow{
			GroupedBy:    []GroupKey{KeyDistrict, KeyCategory, KeyYear},
			District:     o.District,
			Category:     o.Category,
			Year:         o.Year,
			Count:        countValue(o.Count),
			Population:   float64(o.Population),
			Rate:         Rate(o),
			Observations: 1,
		}
	}
	return out
}

// ParseReduceFunc maps "sum" and "mean" to a ReduceFunc.
func ParseReduceFunc(s string) (ReduceFunc, error) {
	switch ReduceFunc(strings.ToLower(strings.TrimSpace(s))) {
	case ReduceSum:
		return ReduceSum, nil
	case ReduceMean:
		return ReduceMean, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidReducer, s)
}

// ParseGroupKey maps a key name to a GroupKey. "crime_category" is accepted
// for category.
func ParseGroupKey(s string) (GroupKey, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(KeyDistrict):
		return KeyDistrict, nil
	case string(KeyCategory), "crime_category":
		return KeyCategory, nil
	case string(KeyYear):
		return KeyYear, nil
	}
	return "", fmt.Errorf("unknown group key %q", s)
}

func validateReducer(r Reducer) error {
	if r.Count != ReduceSum && r.Count != ReduceMean {
		return fmt.Errorf("%w: count reducer %q", ErrInvalidReducer, r.Count)
	}
	if r.Population != ReduceSum && r.Population != ReduceMean {
		return fmt.Errorf("%w: population reducer %q", ErrInvalidReducer, r.Population)
	}
	return nil
}

type group struct {
	row      MetricRow
	countSum float64
	counted  int
	popSum   float64
}

// Aggregate groups observations by keys (in the order given) and reduces
// count and population with the caller's reducer. Missing counts are skipped;
// a group without any count has an undefined count. The rate is computed on
// the reduced values. Groups come out in first-seen order.
func Aggregate(obs []TidyObservation, keys []GroupKey, reducer Reducer) ([]MetricRow, error) {
	if err := validateReducer(reducer); err != nil {
		return nil, err
	}
	seenKeys := make(map[GroupKey]struct{}, len(keys))
	for _, k := range keys {
		switch k {
		case KeyDistrict, KeyCategory, KeyYear:
		default:
			return nil, fmt.Errorf("unknown group key %q", k)
		}
		if _, dup := seenKeys[k]; dup {
			return nil, fmt.Errorf("group key %q repeated", k)
		}
		seenKeys[k] = struct{}{}
	}

	groups := make(map[string]*group)
	var order []string
	for _, o := range obs {
		id := groupID(o, keys)
		g, ok := groups[id]
		if !ok {
			g = &group{row: MetricRow{GroupedBy: append([]GroupKey(nil), keys...)}}
			for _, k := range keys {
				switch k {
				case KeyDistrict:
					g.row.District = o.District
				case KeyCategory:
					g.row.Category = o.Category
				case KeyYear:
					g.row.Year = o.Year
				}
			}
			groups[id] = g
			order = append(order, id)
		}
		g.row.Observations++
		g.popSum += float64(o.Population)
		if o.Count.Valid {
			g.countSum += float64(o.Count.Value)
			g.counted++
		}
	}

	out := make([]MetricRow, 0, len(order))
	for _, id := range order {
		g := groups[id]
		row := g.row
		if g.counted > 0 {
			total := g.countSum
			if reducer.Count == ReduceMean {
				total /= float64(g.counted)
			}
			row.Count = Optional{Value: total, Valid: true}
		}
		row.Population = g.popSum
		if reducer.Population == ReduceMean {
			row.Population = g.popSum / float64(row.Observations)
		}
		row.Rate = rateOf(row.Count, row.Population)
		out = append(out, row)
	}
	return out, nil
}

func groupID(o TidyObservation, keys []GroupKey) string {
	var b strings.Builder
	for _, k := range keys {
		switch k {
		case KeyDistrict:
			b.WriteString(o.District)
		case KeyCategory:
			b.WriteString(o.Category)
		case KeyYear:
			b.WriteString(strconv.Itoa(o.Year))
		}
		b.WriteByte(0)
	}
	return b.String()
}

// PercentageShare sets each row's share of the field's total, in percent.
// Rows with an undefined value get an undefined share. When the total is zero
// or nothing is defined every share is undefined.
func PercentageShare(rows []MetricRow, field ValueField) []MetricRow {
	out := make([]MetricRow, len(rows))
	copy(out, rows)
	var total float64
	defined := 0
	for _, r := range out {
		if v, ok := r.Value(field).Get(); ok {
			total += v
			defined++
		}
	}
	for i := range out {
		v, ok := out[i].Value(field).Get()
		if !ok || defined == 0 || total == 0 {
			out[i].Share = Optional{}
			continue
		}
		out[i].Share = Optional{Value: v / total * 100, Valid: true}
	}
	return out
}

// TopBottom sorts rows with a defined rate ascending (stable) and returns the
// first n as top and the last n as bottom. With fewer than 2n rows the slices
// overlap; overlapping rows appear in both.
func TopBottom(rows []MetricRow, n int) (top, bottom []MetricRow) {
	if n <= 0 {
		return nil, nil
	}
	ranked := definedRates(rows)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Rate.Value < ranked[j].Rate.Value })
	k := n
	if k > len(ranked) {
		k = len(ranked)
	}
	top = append([]MetricRow(nil), ranked[:k]...)
	bottom = append([]MetricRow(nil), ranked[len(ranked)-k:]...)
	return top, bottom
}

// SortByRate returns a copy ordered by ascending rate with undefined rates
// last, preserving input order among equals.
func SortByRate(rows []MetricRow) []MetricRow {
	out := make([]MetricRow, len(rows))
	copy(out, rows)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Rate, out[j].Rate
		if a.Valid != b.Valid {
			return a.Valid
		}
		return a.Valid && a.Value < b.Value
	})
	return out
}

// CountUndefinedRates returns how many rows have an undefined rate.
func CountUndefinedRates(rows []MetricRow) int {
	n := 0
	for _, r := range rows {
		if !r.Rate.Valid {
			n++
		}
	}
	return n
}

func definedRates(rows []MetricRow) []MetricRow {
	out := make([]MetricRow, 0, len(rows))
	for _, r := range rows {
		if r.Rate.Valid {
			out = append(out, r)
		}
	}
	return out
}
