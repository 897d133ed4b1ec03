package merge

import "context"

// Fill runs one substitution pass through engine. Engine failures surface as
// template_render errors carrying recordID; there are no retries.
func Fill(ctx context.Context, engine Engine, tmpl *Template, recordID string, data TemplateDataMap) (FilledDocument, error) {
	if engine == nil {
		return FilledDocument{}, NewError(KindInternal, "substitution engine is required", nil)
	}
	if tmpl == nil {
		return FilledDocument{}, NewTemplateRenderError(recordID, NewError(KindValidation, "template is required", nil))
	}
	if data == nil {
		data = TemplateDataMap{}
	}
	out, err := engine.Fill(ctx, tmpl, data)
	if err != nil {
		return FilledDocument{}, NewTemplateRenderError(recordID, err)
	}
	if len(out) == 0 {
		return FilledDocument{}, NewTemplateRenderError(recordID, NewError(KindInternal, "engine produced an empty document", nil))
	}
	return FilledDocument{RecordID: recordID, Ext: tmpl.Ext, Data: out}, nil
}
