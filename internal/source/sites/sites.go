// Package sites assembles the registry of every supported job board.
package sites

import (
	"github.com/sells-group/jobleads-cli/internal/model"
	"github.com/sells-group/jobleads-cli/internal/source"
	"github.com/sells-group/jobleads-cli/internal/source/doda"
	"github.com/sells-group/jobleads-cli/internal/source/enjapan"
	"github.com/sells-group/jobleads-cli/internal/source/mynavi"
	"github.com/sells-group/jobleads-cli/internal/source/rikunabi"
)

// RefreshSources are the boards searched by name during a refresh.
var RefreshSources = []model.Source{model.SourceMynavi, model.SourceDoda, model.SourceRikunabi}

// Default returns a registry holding every board.
func Default() *source.Registry {
	r := source.NewRegistry()
	r.Register(mynavi.New())
	r.Register(doda.New())
	r.Register(rikunabi.New())
	r.Register(enjapan.New())
	return r
}
