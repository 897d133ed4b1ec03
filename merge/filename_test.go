package merge

import "testing"

func TestOutputFilename(t *testing.T) {
	tests := []struct {
		pattern string
		id      string
		ext     string
		scripts []ScriptRange
		want    string
	}{
		{id: "Ada Lovelace", ext: "docx", want: "Ada_Lovelace.docx"},
		{id: "ישראל ישראלי", ext: ".pdf", want: "ישראל_ישראלי.pdf"},
		{id: "Zoë/../etc", ext: "docx", want: "Zo_____etc.docx"},
		{id: "???", ext: "docx", want: "document.docx"},
		{pattern: "{{.ID}}-{{.Date}}", id: "Ada", ext: "pdf", want: "Ada_2024_03_05.pdf"},
		{pattern: "letter_{{.ID}}_{{.Format}}", id: "7", ext: "docx", want: "letter_7_docx.docx"},
		{id: "Zoë", ext: "docx", scripts: []ScriptRange{{Lo: 0x00C0, Hi: 0x00FF}}, want: "Zoë.docx"},
		{id: "Ada", want: "Ada"},
	}
	for _, tc := range tests {
		got, err := OutputFilename(tc.pattern, tc.id, tc.ext, fixedNow, tc.scripts...)
		if err != nil {
			t.Fatalf("OutputFilename(%q, %q): %v", tc.pattern, tc.id, err)
		}
		if got != tc.want {
			t.Fatalf("OutputFilename(%q, %q): expected %q, got %q", tc.pattern, tc.id, tc.want, got)
		}
	}

	if _, err := OutputFilename("{{.ID", "Ada", "docx", fixedNow); KindFromError(err) != KindValidation {
		t.Fatalf("expected validation error for bad pattern, got %v", err)
	}
	if _, err := OutputFilename("{{.Missing}}", "Ada", "docx", fixedNow); KindFromError(err) != KindValidation {
		t.Fatalf("expected validation error for unknown field, got %v", err)
	}
}

func TestManualIdentifier(t *testing.T) {
	if got := ManualIdentifier(fixedNow); got != "document_2024-03-05" {
		t.Fatalf("unexpected manual identifier %q", got)
	}
}
