// Package mergetemplate wraps rendered document fragments into full HTML
// pages using pongo2 (Django-style) templates.
//
// Shell implements merge.PageShell. It executes the template named
// DefaultPageTemplate through a TemplateExecutor; PongoExecutor ships a built-in
// page and can load overrides from a directory. Any executor with an
// ExecuteTemplate method (html/template included) can be supplied instead.
//
// Header, body and footer fragments are inserted unescaped; title and
// language attributes are escaped by the template engine.
package mergetemplate
