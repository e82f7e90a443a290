package usecase

import (
	"fmt"
	"sort"
	"strings"

	"FinSignal/internal/domain/models"
)

// Policy selects how same-direction candidates for a symbol are collapsed.
type Policy string

const (
	PolicyStrongest Policy = "strongest"
	PolicyWeighted  Policy = "weighted"
	PolicyMajority  Policy = "majority"
)

const maxMergedReasons = 3

var defaultStrengthWeights = map[models.Strength]float64{
	models.Weak:     1,
	models.Moderate: 2,
	models.Strong:   3,
}

// AggregatorConfig parameterises SignalAggregator. Zero values fall back to
// weighted policy, unit type weights, 1/2/3 strength weights and a minimum of
// one candidate per direction.
type AggregatorConfig struct {
	Policy             Policy
	TypeWeights        map[models.SignalType]float64
	StrengthWeights    map[models.Strength]float64
	MinSignalsRequired int
}

// SignalAggregator groups candidates by symbol and direction and resolves
// each group to at most one signal. It never creates a signal that is not
// derived from its input.
type SignalAggregator struct {
	policy          Policy
	typeWeights     map[models.SignalType]float64
	strengthWeights map[models.Strength]float64
	minSignals      int
}

func NewSignalAggregator(cfg AggregatorConfig) (*SignalAggregator, error) {
	a := &SignalAggregator{
		policy:          cfg.Policy,
		typeWeights:     cfg.TypeWeights,
		strengthWeights: map[models.Strength]float64{},
		minSignals:      cfg.MinSignalsRequired,
	}
	switch a.policy {
	case "":
		a.policy = PolicyWeighted
	case PolicyStrongest, PolicyWeighted, PolicyMajority:
	default:
		return nil, fmt.Errorf("%w: aggregation policy %q", ErrInvalidConfig, cfg.Policy)
	}
	if a.minSignals < 1 {
		a.minSignals = 1
	}
	for k, v := range defaultStrengthWeights {
		a.strengthWeights[k] = v
	}
	for k, v := range cfg.StrengthWeights {
		a.strengthWeights[k] = v
	}
	return a, nil
}

func (a *SignalAggregator) Policy() Policy { return a.policy }

// Aggregate resolves the candidates produced by each generator type. The
// result is sorted by symbol with BUY before SELL.
func (a *SignalAggregator) Aggregate(byType map[models.SignalType][]models.TradingSignal) []models.TradingSignal {
	type groupKey struct {
		symbol string
		dir    models.Direction
	}
	groups := map[groupKey][]models.TradingSignal{}
	for _, signals := range byType {
		for _, s := range signals {
			if s.Signal != models.Buy && s.Signal != models.Sell {
				continue
			}
			k := groupKey{symbol: s.Symbol, dir: s.Signal}
			groups[k] = append(groups[k], s)
		}
	}

	out := make([]models.TradingSignal, 0, len(groups))
	for _, g := range groups {
		if len(g) < a.minSignals {
			continue
		}
		// Input map iteration is random; sort so ties resolve the same way every run.
		sort.SliceStable(g, func(i, j int) bool { return g[i].Key() < g[j].Key() })
		out = append(out, a.resolve(g))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].Signal == models.Buy && out[j].Signal == models.Sell
	})
	return out
}

func (a *SignalAggregator) resolve(group []models.TradingSignal) models.TradingSignal {
	switch a.policy {
	case PolicyStrongest:
		return strongest(group)
	case PolicyMajority:
		return strongest(majorityType(group))
	default:
		return a.weighted(group)
	}
}

// strongest picks the highest strength rank, then the most recent timestamp.
func strongest(group []models.TradingSignal) models.TradingSignal {
	best := group[0]
	for _, s := range group[1:] {
		if s.Strength.Rank() > best.Strength.Rank() ||
			(s.Strength.Rank() == best.Strength.Rank() && s.Timestamp.After(best.Timestamp)) {
			best = s
		}
	}
	return best
}

// majorityType keeps the candidates of the most frequent generator type. Equal
// counts go to the type whose best candidate ranks higher under strongest.
func majorityType(group []models.TradingSignal) []models.TradingSignal {
	byType := map[models.SignalType][]models.TradingSignal{}
	for _, s := range group {
		byType[s.Type] = append(byType[s.Type], s)
	}
	var (
		winner models.SignalType
		count  int
	)
	for t, members := range byType {
		switch {
		case len(members) > count:
			winner, count = t, len(members)
		case len(members) == count:
			cur, alt := strongest(byType[winner]), strongest(members)
			if alt.Strength.Rank() > cur.Strength.Rank() ||
				(alt.Strength.Rank() == cur.Strength.Rank() && t < winner) {
				winner = t
			}
		}
	}
	return byType[winner]
}

func (a *SignalAggregator) score(s models.TradingSignal) float64 {
	tw, ok := a.typeWeights[s.Type]
	if !ok {
		tw = 1
	}
	return tw * a.strengthWeights[s.Strength] * s.SuccessRate
}

// weighted merges the group around its highest scoring candidate. Stop, target
// and success rate become score-weighted averages. When the merged levels are
// no longer ordered around the entry, the base candidate's levels are kept.
func (a *SignalAggregator) weighted(group []models.TradingSignal) models.TradingSignal {
	if len(group) == 1 {
		return group[0]
	}

	scores := make([]float64, len(group))
	order := make([]int, len(group))
	total := 0.0
	for i, s := range group {
		scores[i] = a.score(s)
		total += scores[i]
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return scores[order[i]] > scores[order[j]] })
	base := group[order[0]]

	var stop, target, success float64
	for i, s := range group {
		w := 1.0 / float64(len(group))
		if total > 0 {
			w = scores[i] / total
		}
		stop += w * s.StopLoss
		target += w * s.TargetPrice
		success += w * s.SuccessRate
	}

	merged := base
	merged.Metadata = copyMetadata(base.Metadata)
	merged.Metadata.SetInt("merged_count", len(group))
	merged.SuccessRate = success
	merged.StopLoss, merged.TargetPrice = stop, target
	if !merged.ValidLevels() {
		merged.StopLoss, merged.TargetPrice = base.StopLoss, base.TargetPrice
	}
	merged.RiskReward = models.FormatRiskReward(models.RiskRewardRatio(merged.EntryPrice, merged.StopLoss, merged.TargetPrice))

	reasons := make([]string, 0, maxMergedReasons)
	seen := map[string]bool{}
	for _, i := range order {
		r := group[i].Reason
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		reasons = append(reasons, r)
		if len(reasons) == maxMergedReasons {
			break
		}
	}
	merged.Reason = strings.Join(reasons, "; ")
	return merged
}

func copyMetadata(m models.Metadata) models.Metadata {
	out := make(models.Metadata, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}
