package merge

import (
	"reflect"
	"testing"
	"time"
)

var fixedNow = time.Date(2024, 3, 5, 9, 30, 0, 0, time.UTC)

func TestBinderPrecedence(t *testing.T) {
	rec := NewRecord(
		[]string{"Full Name", "City (main)", "Date", "Greeting"},
		[]string{"Ada Lovelace", "London", "1843-07-01", "from record"},
	)
	computed, err := CompileComputedFields(map[string]string{
		"Greeting": `"Hello " + record["Full Name"]`,
		"Initial":  `record["Full Name"][0:1]`,
		"City":     `"computed city"`,
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	binder := NewBinder()
	binder.Computed = computed
	binder.Now = func() time.Time { return fixedNow }

	placeholders := Placeholders{
		Names:  []string{"Full Name", "City", "Date", "Today", "Current Date", "Greeting", "Initial", "Logo", "Missing"},
		Images: []string{"Logo"},
	}
	logo := ImageAttachment{ID: "1", Filename: "logo.png", Data: []byte("png")}
	data := binder.Bind(rec, placeholders, Extras{Images: []ImageAttachment{logo}})

	expect := map[string]string{
		"Full Name":    "Ada Lovelace",
		"City (main)":  "London",
		"City":         "London",
		"Date":         "1843-07-01",
		"Today":        "5.3.2024",
		"Current Date": "5.3.2024",
		"תאריך":        "5.3.2024",
		"Greeting":     "from record",
		"Initial":      "A",
	}
	for key, want := range expect {
		if got, ok := data.String(key); !ok || got != want {
			t.Fatalf("key %q: expected %q, got %q (%v)", key, want, got, ok)
		}
	}
	if images := data.Images("Logo"); len(images) != 1 || images[0].Filename != "logo.png" {
		t.Fatalf("expected shared image bound to Logo, got %v", images)
	}
	if got := Unresolved(data, placeholders); !reflect.DeepEqual(got, []string{"Missing"}) {
		t.Fatalf("expected only Missing unresolved, got %v", got)
	}
}

func TestBinderRecordsAreIsolated(t *testing.T) {
	binder := NewBinder()
	placeholders := Placeholders{Names: []string{"Name", "City"}}
	first := binder.Bind(NewRecord([]string{"Name", "City"}, []string{"Ada", "London"}), placeholders, Extras{})
	second := binder.Bind(NewRecord([]string{"Name"}, []string{"Grace"}), placeholders, Extras{})

	if _, ok := second["City"]; ok {
		t.Fatalf("expected City absent for second record, got %v", second)
	}
	if first["Name"] != "Ada" || second["Name"] != "Grace" {
		t.Fatalf("unexpected bindings %v / %v", first, second)
	}
}

func TestBinderImagesByPlaceholder(t *testing.T) {
	binder := NewBinder()
	placeholders := Placeholders{Names: []string{"Logo", "Signature"}, Images: []string{"Logo", "Signature"}}
	data := binder.Bind(NewRecord(nil, nil), placeholders, Extras{Images: []ImageAttachment{
		{ID: "a", Placeholder: "Logo"},
		{ID: "b", Placeholder: "Signature (scan)"},
	}})
	if images := data.Images("Logo"); len(images) != 1 || images[0].ID != "a" {
		t.Fatalf("expected Logo image only, got %v", images)
	}
	if images := data.Images("Signature"); len(images) != 1 || images[0].ID != "b" {
		t.Fatalf("expected normalized match for Signature, got %v", images)
	}
}

func TestBinderSkipsFailingComputedField(t *testing.T) {
	binder := NewBinder()
	binder.Logger = nil
	binder.Computed = []ComputedField{{Name: "Broken"}}
	data := binder.Bind(NewRecord([]string{"Name"}, []string{"Ada"}), Placeholders{Names: []string{"Broken"}}, Extras{})
	if _, ok := data["Broken"]; ok {
		t.Fatalf("expected failing computed field to be skipped")
	}
}

func TestCompileComputedFields(t *testing.T) {
	fields, err := CompileComputedFields(map[string]string{"b": `locale`, "a": `date`})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if fields[0].Name != "a" || fields[1].Name != "b" {
		t.Fatalf("expected fields sorted by name, got %v", fields)
	}
	value, err := fields[0].Eval(NewRecord(nil, nil), fixedNow, "en-US")
	if err != nil || value != "3/5/2024" {
		t.Fatalf("expected locale date, got %q (%v)", value, err)
	}

	if _, err := CompileComputedFields(map[string]string{"bad": `1 +`}); KindFromError(err) != KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestBinderNormalizedFallbackNeverOverwrites(t *testing.T) {
	binder := NewBinder()
	placeholders := Placeholders{Names: []string{"Full Name"}}

	data := binder.Bind(NewRecord([]string{"Full Name (primary)"}, []string{"Ada"}), placeholders, Extras{})
	if data["Full Name (primary)"] != "Ada" || data["Full Name"] != "Ada" {
		t.Fatalf("expected original and normalized keys, got %v", data)
	}

	data = binder.Bind(NewRecord([]string{"Full Name (primary)", "Full Name"}, []string{"Ada", "Grace"}), placeholders, Extras{})
	if data["Full Name"] != "Grace" {
		t.Fatalf("expected exact header to win over normalized fallback, got %v", data["Full Name"])
	}
}
