package caserun

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/highesttt/fieldpal/pkg/field"
	"github.com/highesttt/fieldpal/pkg/pal"
)

type Runner struct {
	cfg  *Config
	log  zerolog.Logger
	opts []pal.Option
}

// Result collects what a run produced. Patches lists the boundary patches
// the patch commands ran on; Skipped lists those left out because at least
// one field had no values there.
type Result struct {
	Scalars  map[string]float64
	Texts    map[string]string
	Patches  []string
	Skipped  []string
	Outputs  []string
	Duration time.Duration
}

// NewRunner prepares a run of cfg. Bridge options are applied after the
// ones derived from cfg.
func NewRunner(cfg *Config, log zerolog.Logger, opts ...pal.Option) *Runner {
	return &Runner{cfg: cfg, log: log, opts: opts}
}

func (r *Runner) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	vols, err := r.loadFields()
	if err != nil {
		return nil, err
	}

	opts := append([]pal.Option{pal.WithLogger(r.log), pal.WithDebug(r.cfg.DebugEnabled())}, r.opts...)
	b, err := pal.New(r.cfg.resolve(r.cfg.Script), opts...)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = b.Close()
	}()
	r.log.Info().Str("script", b.Script()).Int("fields", len(vols)).Msg("Bridge ready")

	for _, name := range slices.Sorted(maps.Keys(r.cfg.Scalars)) {
		if err = b.PublishScalar(r.cfg.Scalars[name], name); err != nil {
			return nil, err
		}
	}
	for _, name := range slices.Sorted(maps.Keys(r.cfg.Texts)) {
		if err = b.PublishText(r.cfg.Texts[name], name); err != nil {
			return nil, err
		}
	}

	for _, vol := range vols {
		if err = b.PublishBuffer(vol.Internal, vol.Name); err != nil {
			return nil, err
		}
	}
	if err = r.execute(ctx, b, r.cfg.Commands); err != nil {
		return nil, err
	}

	res := &Result{
		Scalars: make(map[string]float64, len(r.cfg.Report.Scalars)),
		Texts:   make(map[string]string, len(r.cfg.Report.Texts)),
	}
	if err = r.runPatches(ctx, b, vols, res); err != nil {
		return nil, err
	}

	for _, name := range r.cfg.Report.Scalars {
		if res.Scalars[name], err = b.RetrieveScalar(name); err != nil {
			return nil, err
		}
	}
	for _, name := range r.cfg.Report.Texts {
		if res.Texts[name], err = b.RetrieveText(name); err != nil {
			return nil, err
		}
	}

	for i, fc := range r.cfg.Fields {
		if fc.Output == "" {
			continue
		}
		path := r.cfg.resolve(fc.Output)
		if err = saveVolume(vols[i], path); err != nil {
			return nil, err
		}
		r.log.Info().Str("field", fc.Name).Str("path", path).Msg("Wrote field")
		res.Outputs = append(res.Outputs, path)
	}
	res.Duration = time.Since(start)
	return res, nil
}

// runPatches repeats the patch commands once per boundary patch with every
// field's patch values published under the field's name. A patch that is
// empty in any field is skipped: publishing it would leave the internal
// values bound instead.
func (r *Runner) runPatches(ctx context.Context, b *pal.Bridge, vols []*field.Volume, res *Result) error {
	if len(vols) == 0 {
		return nil
	}
	cmds := r.cfg.PatchCommands
	if len(cmds) == 0 {
		cmds = r.cfg.Commands
	}
	for i, patch := range vols[0].Patches {
		if slices.ContainsFunc(vols, func(v *field.Volume) bool { return v.Patches[i].Values.Len() == 0 }) {
			r.log.Debug().Str("patch", patch.Name).Msg("Skipping empty patch")
			res.Skipped = append(res.Skipped, patch.Name)
			continue
		}
		for _, vol := range vols {
			if err := b.PublishBuffer(vol.Patches[i].Values, vol.Name); err != nil {
				return err
			}
		}
		if err := r.execute(ctx, b, cmds); err != nil {
			return fmt.Errorf("patch %s: %w", patch.Name, err)
		}
		res.Patches = append(res.Patches, patch.Name)
	}
	return nil
}

func (r *Runner) execute(ctx context.Context, b *pal.Bridge, cmds []string) error {
	for _, cmd := range cmds {
		cmdCtx, cancel := ctx, context.CancelFunc(func() {})
		if r.cfg.Timeout > 0 {
			cmdCtx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		}
		err := b.ExecuteContext(cmdCtx, cmd)
		cancel()
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) loadFields() ([]*field.Volume, error) {
	vols := make([]*field.Volume, 0, len(r.cfg.Fields))
	byName := make(map[string]*field.Volume, len(r.cfg.Fields))
	for _, fc := range r.cfg.Fields {
		var vol *field.Volume
		var err error
		if fc.Like != "" {
			src := byName[fc.Like]
			comps := fc.Components
			if comps == 0 {
				comps = src.Components()
			}
			vol, err = field.ZeroLike(fc.Name, src, comps)
		} else {
			vol, err = loadVolume(fc.Name, r.cfg.resolve(fc.File), fc.Components)
		}
		if err != nil {
			return nil, err
		}
		if len(vols) > 0 {
			if err = field.SameLayout(vols[0], vol); err != nil {
				return nil, err
			}
		}
		r.log.Debug().
			Str("field", vol.Name).
			Int("cells", vol.Internal.Len()).
			Int("components", vol.Components()).
			Int("patches", len(vol.Patches)).
			Msg("Loaded field")
		vols = append(vols, vol)
		byName[fc.Name] = vol
	}
	return vols, nil
}
