package publish

import (
	"fmt"

	"github.com/jmehdipour/wx-ci/internal/model"
	"github.com/labstack/gommon/color"
)

func (p *Publisher) summary(title string, info model.Info) {
	w := p.out()
	if title != "" {
		fmt.Fprintln(w, color.Green(title))
	}
	for _, f := range info {
		fmt.Fprintf(w, "%s %s\n", color.Green(label(f)+":"), f.Value)
	}
}

func label(f model.Field) string {
	if f.Alias == "" {
		return f.Name
	}
	return f.Name + "(" + f.Alias + ")"
}
