package browser

import "go.trai.ch/refresh/internal/core/ports"

func NewOpenerWith(logger ports.Logger, open func(string) error) *Opener {
	return &Opener{logger: logger, open: open}
}
