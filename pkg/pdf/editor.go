package pdf

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Rect is an axis aligned rectangle in page space, bottom-left origin.
type Rect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Fill is an RGB color in [0,1] with an opacity.
type Fill struct {
	R       float64
	G       float64
	B       float64
	Opacity float64
}

const redactionGState = "GSRedact"

func newConfig() *model.Configuration {
	model.ConfigPath = "disable"
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Editor mutates page content streams with pdfcpu.
type Editor struct {
	conf *model.Configuration
}

// NewEditor creates an editor with a relaxed validation configuration.
func NewEditor() *Editor {
	return &Editor{conf: newConfig()}
}

// Paint appends a filled path of rects to each listed page (1-indexed) and
// returns the re-serialized document. The original content is wrapped in q/Q
// so its graphics state cannot leak into the overlay.
func (e *Editor) Paint(data []byte, rects map[int][]Rect, fill Fill) ([]byte, error) {
	if len(rects) == 0 {
		return data, nil
	}

	ctx, err := api.ReadContext(bytes.NewReader(data), e.conf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}

	pages := make([]int, 0, len(rects))
	for nr := range rects {
		pages = append(pages, nr)
	}
	sort.Ints(pages)

	for _, nr := range pages {
		if nr < 1 || nr > ctx.PageCount || len(rects[nr]) == 0 {
			continue
		}
		if err := paintPage(ctx, nr, rects[nr], fill); err != nil {
			return nil, fmt.Errorf("paint page %d: %w", nr, err)
		}
	}

	var buf bytes.Buffer
	if err := api.WriteContext(ctx, &buf); err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}
	return buf.Bytes(), nil
}

func paintPage(ctx *model.Context, nr int, rects []Rect, fill Fill) error {
	translucent := fill.Opacity < 1
	d, _, _, err := ctx.PageDict(nr, translucent)
	if err != nil {
		return err
	}
	if d == nil {
		return fmt.Errorf("missing page dict")
	}

	if translucent {
		if err := addGState(ctx, d, fill.Opacity); err != nil {
			return err
		}
	}

	pre, err := newContentStream(ctx, []byte("q\n"))
	if err != nil {
		return err
	}
	post, err := newContentStream(ctx, overlay(rects, fill, translucent))
	if err != nil {
		return err
	}

	contents := types.Array{*pre}
	if obj, found := d.Find("Contents"); found && obj != nil {
		switch c := obj.(type) {
		case types.Array:
			contents = append(contents, c...)
		case types.IndirectRef:
			deref, err := ctx.Dereference(c)
			if err != nil {
				return err
			}
			if arr, ok := deref.(types.Array); ok {
				contents = append(contents, arr...)
			} else {
				contents = append(contents, c)
			}
		}
	}
	contents = append(contents, *post)
	d.Update("Contents", contents)
	return nil
}

func overlay(rects []Rect, fill Fill, translucent bool) []byte {
	var b strings.Builder
	b.WriteString("Q\nq\n")
	if translucent {
		fmt.Fprintf(&b, "/%s gs\n", redactionGState)
	}
	fmt.Fprintf(&b, "%.4f %.4f %.4f rg\n", fill.R, fill.G, fill.B)
	for _, r := range rects {
		fmt.Fprintf(&b, "%.3f %.3f %.3f %.3f re\n", r.X, r.Y, r.Width, r.Height)
	}
	b.WriteString("f\nQ\n")
	return []byte(b.String())
}

func newContentStream(ctx *model.Context, content []byte) (*types.IndirectRef, error) {
	sd, err := ctx.XRefTable.NewStreamDictForBuf(content)
	if err != nil {
		return nil, err
	}
	if err := sd.Encode(); err != nil {
		return nil, err
	}
	return ctx.XRefTable.IndRefForNewObject(*sd)
}

func addGState(ctx *model.Context, page types.Dict, opacity float64) error {
	res := types.Dict{}
	if obj, found := page.Find("Resources"); found && obj != nil {
		d, err := ctx.DereferenceDict(obj)
		if err != nil {
			return err
		}
		if d != nil {
			res = d
		}
	}
	page.Update("Resources", res)

	ext := types.Dict{}
	if obj, found := res.Find("ExtGState"); found && obj != nil {
		d, err := ctx.DereferenceDict(obj)
		if err != nil {
			return err
		}
		if d != nil {
			ext = d
		}
	}
	res.Update("ExtGState", ext)

	ext.Update(redactionGState, types.Dict{
		"Type": types.Name("ExtGState"),
		"ca":   types.Float(opacity),
		"CA":   types.Float(opacity),
	})
	return nil
}
