package daemon

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"dsf/internal/domain"
)

// maxCachedFilters bounds the compiled program cache.
const maxCachedFilters = 128

// filterSet compiles and caches CEL list filters. A peer filter sees a map
// variable named peer, a service filter one named service.
type filterSet struct {
	peerEnv    *cel.Env
	serviceEnv *cel.Env

	mu       sync.Mutex
	programs map[string]cel.Program
}

func newFilterSet() (*filterSet, error) {
	peerEnv, err := cel.NewEnv(
		cel.Variable("peer", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	serviceEnv, err := cel.NewEnv(
		cel.Variable("service", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &filterSet{
		peerEnv:    peerEnv,
		serviceEnv: serviceEnv,
		programs:   make(map[string]cel.Program),
	}, nil
}

func (f *filterSet) program(env *cel.Env, scope, expr string) (cel.Program, error) {
	key := scope + "\x00" + expr

	f.mu.Lock()
	defer f.mu.Unlock()

	if prg, ok := f.programs[key]; ok {
		return prg, nil
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: filter: %v", domain.ErrMalformed, issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("%w: filter must be boolean, got %s", domain.ErrMalformed, out)
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: filter: %v", domain.ErrMalformed, err)
	}

	if len(f.programs) >= maxCachedFilters {
		f.programs = make(map[string]cel.Program)
	}
	f.programs[key] = prg
	return prg, nil
}

func eval(prg cel.Program, name string, vars map[string]any) (bool, error) {
	out, _, err := prg.Eval(map[string]any{name: vars})
	if err != nil {
		return false, fmt.Errorf("%w: filter: %v", domain.ErrMalformed, err)
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("%w: filter returned %T", domain.ErrMalformed, out.Value())
	}
	return matched, nil
}

// Peers keeps the peers matching expr. An empty expression keeps all.
func (f *filterSet) Peers(expr string, peers []domain.PeerInfo) ([]domain.PeerInfo, error) {
	if expr == "" {
		return peers, nil
	}
	prg, err := f.program(f.peerEnv, "peer", expr)
	if err != nil {
		return nil, err
	}

	out := make([]domain.PeerInfo, 0, len(peers))
	for _, p := range peers {
		ok, err := eval(prg, "peer", peerVars(p))
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// Services keeps the services matching expr. An empty expression keeps all.
func (f *filterSet) Services(expr string, services []domain.ServiceInfo) ([]domain.ServiceInfo, error) {
	if expr == "" {
		return services, nil
	}
	prg, err := f.program(f.serviceEnv, "service", expr)
	if err != nil {
		return nil, err
	}

	out := make([]domain.ServiceInfo, 0, len(services))
	for _, s := range services {
		ok, err := eval(prg, "service", serviceVars(s))
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func peerVars(p domain.PeerInfo) map[string]any {
	return map[string]any{
		"id":           p.ID.String(),
		"index":        int64(p.Index),
		"address":      string(p.Address.Address),
		"address_kind": string(p.Address.Kind),
		"state":        string(p.State.Kind),
		"blocked":      p.Blocked,
		"sent":         int64(p.Sent),
		"received":     int64(p.Received),
		"seen":         p.Seen != nil,
	}
}

func serviceVars(s domain.ServiceInfo) map[string]any {
	return map[string]any{
		"id":             s.ID.String(),
		"index":          int64(s.Index),
		"application_id": int64(s.ApplicationID),
		"state":          string(s.State),
		"origin":         s.Origin,
		"public":         s.Public(),
		"registered":     s.Registered,
		"located":        s.Located,
		"subscribed":     s.Subscribed,
		"subscribers":    int64(s.Subscribers),
		"replicas":       int64(s.Replicas),
	}
}
