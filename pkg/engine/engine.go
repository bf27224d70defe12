// Package engine implements the flag decision procedure: given a definition,
// the tenant's segments, a caller context, and a frozen time reading, decide
// whether the flag fires and produce its typed result. A decision is a pure
// function of its inputs; determinism across calls and processes is the
// contract that keeps one user inside one experiment arm.
package engine

import (
	"time"

	"github.com/pennant-io/pennant/pkg/bucket"
	"github.com/pennant-io/pennant/pkg/expr"
	"github.com/pennant-io/pennant/pkg/flags"
)

// Input is the caller context a decision is made against. ID is the bucketing
// identity; the transport applies its backup-id fallback before the engine
// runs, so the engine never synthesizes one. User, Page, Geo, and Request
// hold JSON-model values and are only read through rule expressions.
type Input struct {
	ID      string
	User    any
	Page    any
	Geo     any
	Request any
}

func (in Input) vars() map[string]any {
	return map[string]any{
		"id":      in.ID,
		"user":    in.User,
		"page":    in.Page,
		"geo":     in.Geo,
		"request": in.Request,
	}
}

// Result is the outcome of one flag decision. IsEval reports whether the
// flag fired; when it did not, Result carries the type's default value.
type Result struct {
	Type   flags.Type `json:"type"`
	Result any        `json:"result"`
	IsEval bool       `json:"isEval"`

	// Variation is the chosen variation id when a variant flag fired. It is
	// surfaced for exposure tracking, not on the wire.
	Variation string `json:"-"`
}

// Default returns the non-firing result for a definition: false for boolean
// flags, null for payload flags, and the first variation's payload (else its
// id) for variant flags.
func Default(def flags.Definition) Result {
	switch def.Type {
	case flags.TypeBoolean:
		return Result{Type: def.Type, Result: false}
	case flags.TypePayload:
		return Result{Type: def.Type, Result: nil}
	case flags.TypeVariant:
		if len(def.Variations) == 0 {
			return Result{Type: def.Type, Result: nil}
		}
		return Result{Type: def.Type, Result: variationValue(def.Variations[0])}
	}
	return Result{Type: def.Type, Result: nil}
}

// Evaluator runs decisions, compiling rule expressions through an optional
// shared program cache. The zero value parses every expression afresh.
type Evaluator struct {
	cache *expr.Cache
}

// New returns an evaluator that compiles expressions through cache. A nil
// cache is valid and simply disables memoisation.
func New(cache *expr.Cache) *Evaluator {
	return &Evaluator{cache: cache}
}

// Evaluate decides one flag. A zero now freezes the wall clock at entry;
// every rule, segment, and rollout step in this decision observes the same
// instant.
func (e *Evaluator) Evaluate(def flags.Definition, segments map[string]string, in Input, now time.Time) Result {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	env := expr.Env{Vars: in.vars(), Now: now}
	return e.decide(def, segments, in, env, now)
}

// EvaluateAll decides every flag in the document under one frozen time
// reading. Expression failures are contained per flag; a malformed rule
// yields that flag's default and never disturbs its neighbours.
func (e *Evaluator) EvaluateAll(doc flags.Document, in Input, now time.Time) map[string]Result {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	env := expr.Env{Vars: in.vars(), Now: now}
	results := make(map[string]Result, len(doc.Flags))
	for id, def := range doc.Flags {
		results[id] = e.decide(def, doc.Segments, in, env, now)
	}
	return results
}

// Evaluate decides one flag without a shared program cache.
func Evaluate(def flags.Definition, segments map[string]string, in Input, now time.Time) Result {
	var e Evaluator
	return e.Evaluate(def, segments, in, now)
}

func (e *Evaluator) decide(def flags.Definition, segments map[string]string, in Input, env expr.Env, now time.Time) Result {
	if !def.Enabled {
		return Default(def)
	}

	// Rules are AND-combined; a parse or runtime failure counts as false.
	for _, rule := range def.Rules {
		if !e.truthy(rule, env) {
			return Default(def)
		}
	}

	// Standalone segments are OR-combined, but only while no rollout steps
	// exist; steps subsume the flat segment check.
	if len(def.Rollouts) == 0 && len(def.Segments) > 0 {
		matched := false
		for _, id := range def.Segments {
			src, ok := segments[id]
			if ok && e.truthy(src, env) {
				matched = true
				break
			}
		}
		if !matched {
			return Default(def)
		}
	}

	if len(def.Rollouts) > 0 {
		if !e.evalSteps(def, segments, in, env, now) {
			return Default(def)
		}
	} else if !bucket.InRollout(in.ID, def.ID, def.EffectiveRollout()) {
		return Default(def)
	}

	return e.fire(def, in)
}

// evalSteps walks the rollout steps in declared order and reports whether
// the first passing step admits the caller. Later steps are never consulted
// once one passes.
func (e *Evaluator) evalSteps(def flags.Definition, segments map[string]string, in Input, env expr.Env, now time.Time) bool {
	for _, step := range def.Rollouts {
		if e.stepPasses(def, step, segments, in, env, now) {
			return true
		}
	}
	return false
}

func (e *Evaluator) stepPasses(def flags.Definition, step flags.RolloutStep, segments map[string]string, in Input, env expr.Env, now time.Time) bool {
	start, err := expr.ParseTimestamp(step.Start)
	if err != nil || now.Before(start) {
		return false
	}
	// A step constrains nothing without a segment or a percentage; such a
	// step is invalid and admits no one.
	if step.Segment == "" && step.Percentage == nil {
		return false
	}
	if step.Segment != "" {
		src, ok := segments[step.Segment]
		if !ok || !e.truthy(src, env) {
			return false
		}
	}
	if step.Percentage != nil && !bucket.InRollout(in.ID, def.ID, *step.Percentage) {
		return false
	}
	return true
}

func (e *Evaluator) fire(def flags.Definition, in Input) Result {
	switch def.Type {
	case flags.TypeBoolean:
		return Result{Type: def.Type, Result: true, IsEval: true}

	case flags.TypePayload:
		var payload any
		if def.HasPayload() {
			payload = def.Payload
		}
		return Result{Type: def.Type, Result: payload, IsEval: true}

	case flags.TypeVariant:
		weights := make([]int, len(def.Variations))
		for i, v := range def.Variations {
			weights[i] = v.Weight
		}
		idx := bucket.ChooseVariant(in.ID, def.ID, weights)
		if idx < 0 {
			// Weights sum below the caller's bucket: deliberate underflow,
			// the default result stands.
			return Default(def)
		}
		chosen := def.Variations[idx]
		return Result{Type: def.Type, Result: variationValue(chosen), IsEval: true, Variation: chosen.ID}
	}
	return Default(def)
}

func (e *Evaluator) truthy(src string, env expr.Env) bool {
	var p *expr.Program
	var err error
	if e.cache != nil {
		p, err = e.cache.Compile(src)
	} else {
		p, err = expr.Parse(src)
	}
	if err != nil {
		return false
	}
	return p.EvalBool(env)
}

func variationValue(v flags.Variation) any {
	if len(v.Payload) > 0 {
		return v.Payload
	}
	return v.ID
}
