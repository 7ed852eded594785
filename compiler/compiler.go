package compiler

import (
	"context"
	"sort"

	"tlog.app/go/errors"
	"tlog.app/go/loc"
	"tlog.app/go/tlog"

	"github.com/slowlang/munch/compiler/asm/amd64"
	"github.com/slowlang/munch/compiler/asm/arm64"
	"github.com/slowlang/munch/compiler/back"
	"github.com/slowlang/munch/compiler/ir"
	"github.com/slowlang/munch/compiler/samples"
)

type TargetFunc func(env *ir.Env) back.Target

var (
	ErrUnknownTarget = errors.New("unknown target")
	ErrUnknownSample = errors.New("unknown sample")
)

var targets = map[string]TargetFunc{
	"amd64": func(env *ir.Env) back.Target { return amd64.New(env) },
	"arm64": func(env *ir.Env) back.Target { return arm64.New(env) },
}

// Targets lists supported architectures.
func Targets() []string {
	l := make([]string, 0, len(targets))

	for n := range targets {
		l = append(l, n)
	}

	sort.Strings(l)

	return l
}

// NewTarget creates target registers in env.
func NewTarget(arch string, env *ir.Env) (back.Target, error) {
	f, ok := targets[arch]
	if !ok {
		return nil, errors.Wrap(ErrUnknownTarget, "%q", arch)
	}

	return f(env), nil
}

// Compile generates code for a program which frames were laid out by t.
func Compile(ctx context.Context, t back.Target, p *ir.Program, cfg back.Config) (res *back.Program, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "compile", "target", t.Name())
	defer tr.Finish("err", &err)

	if p.Env == nil {
		return nil, errors.New("program without env")
	}

	res, err = back.New(p.Env, t, cfg).Program(ctx, p)
	if err != nil {
		return nil, errors.Wrap(err, "back")
	}

	return res, nil
}

// CompileSample builds the named sample for arch and compiles it.
func CompileSample(ctx context.Context, arch, name string, cfg back.Config) (*back.Program, error) {
	s, ok := samples.Get(name)
	if !ok {
		return nil, errors.Wrap(ErrUnknownSample, "%q", name)
	}

	env := ir.NewEnv()

	t, err := NewTarget(arch, env)
	if err != nil {
		return nil, err
	}

	tlog.SpanFromContext(ctx).Printw("sample", "name", s.Name, "arch", arch, "from", loc.Caller(1))

	return Compile(ctx, t, s.Build(env, t), cfg)
}
