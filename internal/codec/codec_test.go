package codec

import (
	"errors"
	"fmt"
	"testing"

	"github.com/conorfennell/knoldeck/internal/domain"
)

type color int

const (
	red color = iota + 1
	green
)

type paint struct {
	Name  string
	Color color
}

type paintV1 struct {
	Name  string `json:"name" validate:"required"`
	Color string `json:"color" validate:"oneof=r g"`
}

type paintV2 struct {
	Name  string `json:"name" validate:"required"`
	Color int    `json:"color" validate:"min=1,max=2"`
}

func newPaintCodec() *Codec[paint] {
	return New("paint", 2,
		func(p paint) paintV2 { return paintV2{Name: p.Name, Color: int(p.Color)} },
		Define(1, func(v paintV1) (paint, error) {
			switch v.Color {
			case "r":
				return paint{Name: v.Name, Color: red}, nil
			case "g":
				return paint{Name: v.Name, Color: green}, nil
			}
			return paint{}, fmt.Errorf("unknown color %q", v.Color)
		}),
		Define(2, func(v paintV2) (paint, error) {
			return paint{Name: v.Name, Color: color(v.Color)}, nil
		}),
	)
}

func TestRoundTripCurrentVersion(t *testing.T) {
	c := newPaintCodec()
	in := paint{Name: "door", Color: green}

	b, err := c.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(b) != `{"version":2,"data":{"name":"door","color":2}}` {
		t.Errorf("unexpected stored form %s", b)
	}

	again, err := c.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(again) != string(b) {
		t.Errorf("serialization is not deterministic: %s vs %s", b, again)
	}

	out, err := c.Unmarshal(b)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out != in {
		t.Errorf("expected %+v, got %+v", in, out)
	}
}

func TestHistoricalVersions(t *testing.T) {
	c := newPaintCodec()
	testCases := []struct {
		name string
		blob string
		want paint
	}{
		{name: "v1 red", blob: `{"version":1,"data":{"name":"wall","color":"r"}}`, want: paint{Name: "wall", Color: red}},
		{name: "v1 green", blob: `{"version":1,"data":{"name":"roof","color":"g"}}`, want: paint{Name: "roof", Color: green}},
		{name: "v2", blob: `{"version":2,"data":{"name":"gate","color":1}}`, want: paint{Name: "gate", Color: red}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := c.Unmarshal([]byte(tc.blob))
			if err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if got != tc.want {
				t.Errorf("expected %+v, got %+v", tc.want, got)
			}
			s, err := c.Serialize(got)
			if err != nil {
				t.Fatalf("Serialize: %v", err)
			}
			if s.Version != c.Current() {
				t.Errorf("expected re-serialization at version %d, got %d", c.Current(), s.Version)
			}
		})
	}
}

func TestRejectsMalformed(t *testing.T) {
	c := newPaintCodec()
	testCases := []struct {
		name string
		blob string
	}{
		{name: "not json", blob: `nope`},
		{name: "untagged", blob: `{"name":"door","color":2}`},
		{name: "missing version", blob: `{"data":{"name":"door","color":2}}`},
		{name: "future version", blob: `{"version":3,"data":{"name":"door","color":2}}`},
		{name: "zero version", blob: `{"version":0,"data":{}}`},
		{name: "missing data", blob: `{"version":2}`},
		{name: "null data", blob: `{"version":2,"data":null}`},
		{name: "wrong shape", blob: `{"version":2,"data":{"name":"door","color":"r"}}`},
		{name: "unknown field", blob: `{"version":2,"data":{"name":"door","color":2,"gloss":true}}`},
		{name: "fails validation", blob: `{"version":2,"data":{"name":"","color":2}}`},
		{name: "enum out of range", blob: `{"version":1,"data":{"name":"door","color":"b"}}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.Unmarshal([]byte(tc.blob))
			if !errors.Is(err, domain.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestVersions(t *testing.T) {
	c := newPaintCodec()
	got := c.Versions()
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("unexpected versions %v", got)
	}
}

func TestNewPanicsWithoutCurrentSchema(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected a panic for a missing current schema")
		}
	}()
	New("paint", 3, func(p paint) paintV2 { return paintV2{} },
		Define(1, func(v paintV1) (paint, error) { return paint{}, nil }),
	)
}
