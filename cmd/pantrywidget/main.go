//go:build js && wasm

// Command pantrywidget runs the food-pantry widget in the browser. Load it
// after the page defines window.foodPantryConfig (or serve /config.js).
package main

import (
	"context"
	"errors"
	"syscall/js"

	"foodpantry/internal/config"
	"foodpantry/internal/dataset"
	"foodpantry/internal/log"
	"foodpantry/internal/widget"
)

func main() {
	ctx := context.Background()
	cfg, err := readGlobal(config.DefaultGlobal)
	if err != nil {
		log.Warn(ctx).Err(err).Msg("pantrywidget: using empty configuration")
	}

	doc := document{js.Global().Get("document")}
	loop := widget.NewLoop(0)
	ctrl, err := widget.New(cfg, doc, dataset.NewLoader(cfg), loop, widget.WithBaseContext(ctx))
	if err != nil {
		log.Error().Err(err).Msg("pantrywidget: widget not mounted")
		return
	}
	loop.Post(ctrl.Init)
	bind(doc, loop, ctrl)
	_ = loop.Run(ctx)
}

// readGlobal reads the configuration object through JSON.stringify so it
// goes through the same reader as every other source.
func readGlobal(name string) (config.Config, error) {
	v := js.Global().Get(name)
	if v.IsUndefined() || v.IsNull() {
		return config.Normalize(config.Config{}), config.ErrGlobalMissing
	}
	raw := js.Global().Get("JSON").Call("stringify", v)
	if raw.Type() != js.TypeString {
		return config.Normalize(config.Config{}), errors.New("pantrywidget: configuration global is not serializable")
	}
	return config.Read([]byte(raw.String()))
}

// bind attaches DOM listeners. Callbacks only post to the loop; the
// controller itself always runs on the loop goroutine.
func bind(doc document, loop *widget.Loop, ctrl *widget.Controller) {
	state := doc.get(widget.StateSelectID)
	state.Call("addEventListener", "change", js.FuncOf(func(this js.Value, _ []js.Value) any {
		value := this.Get("value").String()
		loop.Post(func() { ctrl.StateChanged(value) })
		return nil
	}))

	search := doc.get(widget.SearchInputID)
	search.Call("addEventListener", "input", js.FuncOf(func(this js.Value, _ []js.Value) any {
		term := this.Get("value").String()
		loop.Post(func() { ctrl.SearchChanged(term) })
		return nil
	}))

	results := doc.get(widget.ResultsID)
	activate := func(target js.Value) {
		if back := target.Call("closest", "[data-action=back]"); !back.IsNull() {
			loop.Post(ctrl.Back)
			return
		}
		if item := target.Call("closest", "[data-id]"); !item.IsNull() {
			id := item.Get("dataset").Get("id").String()
			loop.Post(func() { ctrl.SelectRecord(id) })
		}
	}
	results.Call("addEventListener", "click", js.FuncOf(func(_ js.Value, args []js.Value) any {
		activate(args[0].Get("target"))
		return nil
	}))
	results.Call("addEventListener", "keydown", js.FuncOf(func(_ js.Value, args []js.Value) any {
		key := args[0].Get("key").String()
		if key == "Enter" || key == " " {
			args[0].Call("preventDefault")
			activate(args[0].Get("target"))
		}
		return nil
	}))
}

type document struct{ v js.Value }

func (d document) get(id string) js.Value { return d.v.Call("getElementById", id) }

func (d document) Element(id string) (widget.Element, bool) {
	v := d.get(id)
	if v.IsNull() || v.IsUndefined() {
		return nil, false
	}
	return element{v}, true
}

func (d document) LabelFor(id string) (widget.Element, bool) {
	v := d.v.Call("querySelector", `label[for="`+id+`"]`)
	if v.IsNull() || v.IsUndefined() {
		return nil, false
	}
	return element{v}, true
}

type element struct{ v js.Value }

func (e element) SetHTML(markup string)     { e.v.Set("innerHTML", markup) }
func (e element) SetText(text string)       { e.v.Set("textContent", text) }
func (e element) SetDisabled(disabled bool) { e.v.Set("disabled", disabled) }
func (e element) Value() string             { return e.v.Get("value").String() }
func (e element) SetValue(value string)     { e.v.Set("value", value) }
