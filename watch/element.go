package watch

import (
	"github.com/go-rod/rod"
)

// pageElement adapts a live CDP element to fallback.Element. Every
// operation round-trips to the page; the element itself remains the only
// store of fallback state.
type pageElement struct {
	el *rod.Element
}

func (p *pageElement) Attr(name string) (string, bool) {
	v, err := p.el.Attribute(name)
	if err != nil || v == nil {
		return "", false
	}
	return *v, true
}

func (p *pageElement) SetAttr(name, value string) error {
	_, err := p.el.Eval(`(n, v) => this.setAttribute(n, v)`, name, value)
	return err
}

func (p *pageElement) RemoveAttr(name string) error {
	_, err := p.el.Eval(`(n) => this.removeAttribute(n)`, name)
	return err
}

func (p *pageElement) AddClass(name string) error {
	_, err := p.el.Eval(`(c) => this.classList.add(c)`, name)
	return err
}

func (p *pageElement) RemoveClass(name string) error {
	_, err := p.el.Eval(`(c) => this.classList.remove(c)`, name)
	return err
}

func (p *pageElement) Src() string {
	res, err := p.el.Eval(`() => this.currentSrc || this.getAttribute("src") || ""`)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}
