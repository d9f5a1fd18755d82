package internal

import (
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// ResolvedDate is the outcome of the source chain for one file.
type ResolvedDate struct {
	Time   time.Time
	Found  bool
	Source Provenance
}

// Missing is the result when no source produced a date.
func Missing() ResolvedDate {
	return ResolvedDate{Source: ProvMissing}
}

// Resolver applies the metadata sources in their fixed priority order.
type Resolver struct {
	sources []Source
	tool    *ExifToolSession
	log     *log.Logger
}

// NewResolver builds the chain once from what is available: the exiftool
// source only when the session is usable, deep sources only when enabled.
func NewResolver(opts ReadOptions, tool *ExifToolSession, media MediaTypes, logger *log.Logger) *Resolver {
	logger = orDiscard(logger)
	var chain []Source
	if tool.Available() {
		chain = append(chain, toolSource{})
	}
	if opts.Deep.ReadTakeoutJSON {
		chain = append(chain, takeoutSource{log: logger})
	}
	if opts.Deep.ReadXMPSidecar {
		chain = append(chain, xmpSidecarSource{log: logger})
	}
	chain = append(chain,
		embeddedSource{media: media, log: logger},
		heicXMPSource{media: media},
		containerSource{media: media, log: logger},
	)
	if opts.Deep.ParseFilename {
		chain = append(chain, filenameSource{})
	}
	if opts.Fallback == FallbackCreated || opts.Fallback == FallbackModified {
		chain = append(chain, fsSource{policy: opts.Fallback})
	}
	return &Resolver{sources: chain, tool: tool, log: logger}
}

// Describe lists the active sources in priority order.
func (r *Resolver) Describe() string {
	names := make([]string, len(r.sources))
	for i, s := range r.sources {
		names[i] = s.Name()
	}
	return strings.Join(names, " > ")
}

// Resolve returns the first date any source reports. rec is the prefetched
// exiftool record; when nil and exiftool is available, the file is queried
// on its own. Pass an empty record to skip that query.
func (r *Resolver) Resolve(path string, rec *ToolRecord) ResolvedDate {
	if rec == nil && r.tool.Available() {
		rec = r.tool.Metadata(path)
	}
	for _, src := range r.sources {
		t, prov, ok := r.read(src, path, rec)
		if ok {
			return ResolvedDate{Time: t, Found: true, Source: prov}
		}
	}
	return Missing()
}

func (r *Resolver) read(src Source, path string, rec *ToolRecord) (t time.Time, prov Provenance, ok bool) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Debug("source panicked", "source", src.Name(), "file", path, "err", p)
			t, prov, ok = time.Time{}, "", false
		}
	}()
	return src.Read(path, rec)
}
