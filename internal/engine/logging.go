package engine

import (
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

func (e *Engine) logEntry(component string) *logrus.Entry {
	entry := e.log.WithComponent(component)
	if e.maker != nil && e.taker != nil {
		entry = entry.WithFields(logrus.Fields{
			"maker": e.maker.Name(),
			"taker": e.taker.Name(),
		})
	}
	return entry
}

func (e *Engine) flowEntry(kind string, id int64) *logrus.Entry {
	return e.log.WithFlow(kind, id).WithField("component", kind)
}

func formatFloatPlain(val float64) string {
	formatted := strconv.FormatFloat(val, 'f', 8, 64)
	formatted = strings.TrimRight(formatted, "0")
	formatted = strings.TrimRight(formatted, ".")
	if formatted == "" || formatted == "-0" {
		return "0"
	}
	return formatted
}
