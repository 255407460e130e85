package mbtrn

// Context threads configuration, publish handles, the TRN estimator
// capability and stats through every component boundary, replacing the
// source's module-wide singletons (spec.md §9's "Global state → explicit
// context" note). No component in this tree reaches outward for any of
// these; they are passed in explicitly.
//
// Publishers and Estimator are declared as `any` here to avoid an import
// cycle with the publish/ and trn/ packages, which define the concrete
// types (publish.Server, trn.Estimator) these fields hold. cmd/mbtrnpp
// does not build a Context; it hands those values to
// pipeline.Controller directly.
type Context struct {
	Config     *Config
	Resolver   *Resolver
	Stats      *Stats
	Publishers any
	Estimator  any
}

// NewContext constructs a Context ready for the pipeline controller.
func NewContext(cfg *Config, resolver *Resolver) *Context {
	return &Context{
		Config:   cfg,
		Resolver: resolver,
		Stats:    &Stats{},
	}
}
