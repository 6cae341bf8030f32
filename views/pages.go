package views

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"io"

	"github.com/a-h/templ"
)

const pageStyle = `body{font:15px/1.5 system-ui,sans-serif;margin:2rem auto;max-width:960px;padding:0 1rem;color:#0f172a}
table{border-collapse:collapse;width:100%;margin-bottom:2rem}th,td{text-align:left;padding:.4rem .6rem;border-bottom:1px solid #e2e8f0}
td.num{text-align:right}code{font-size:13px}img{display:block;max-width:240px;border:1px solid #e2e8f0}
.failed{color:#b91c1c}`

// Index lists stored covers and the most recent batch items.
func Index(assets []AssetRow, runs []RunRow) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var buf bytes.Buffer
		head(&buf, "pubcover")
		buf.WriteString("<h1>Covers</h1>\n")
		if len(assets) == 0 {
			buf.WriteString("<p>No covers published yet.</p>\n")
		} else {
			buf.WriteString("<table><thead><tr><th>Preview</th><th>ID</th><th>Hash</th><th>Size</th><th>Updated</th></tr></thead><tbody>\n")
			for _, a := range assets {
				src := "/assets/" + PathEscape(a.ID)
				fmt.Fprintf(&buf, `<tr><td><a href="%s"><img src="%s" alt="%s" loading="lazy"></a></td><td>%s</td><td><code>%s</code></td><td class="num">%s</td><td>%s</td></tr>`+"\n",
					html.EscapeString(src), html.EscapeString(src), html.EscapeString(a.ID),
					html.EscapeString(a.ID), html.EscapeString(ShortHash(a.Hash)),
					FormatSize(a.Size), FormatTime(a.UpdatedAt))
			}
			buf.WriteString("</tbody></table>\n")
		}
		if len(runs) > 0 {
			buf.WriteString("<h2>Recent runs</h2>\n<table><thead><tr><th>Run</th><th>ID</th><th>Status</th><th>Recorded</th></tr></thead><tbody>\n")
			for _, r := range runs {
				status := html.EscapeString(r.Status)
				if r.Error != "" {
					status = fmt.Sprintf(`<span class="failed" title="%s">%s</span>`, html.EscapeString(r.Error), status)
				}
				fmt.Fprintf(&buf, "<tr><td><code>%s</code></td><td>%s</td><td>%s</td><td>%s</td></tr>\n",
					html.EscapeString(ShortHash(r.RunID)), html.EscapeString(r.ID), status, FormatTime(r.Recorded))
			}
			buf.WriteString("</tbody></table>\n")
		}
		buf.WriteString("</body></html>\n")
		_, err := w.Write(buf.Bytes())
		return err
	})
}

// Error renders a minimal error page.
func Error(code int, msg string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var buf bytes.Buffer
		head(&buf, fmt.Sprintf("%d", code))
		fmt.Fprintf(&buf, "<h1>%d</h1>\n<p>%s</p>\n</body></html>\n", code, html.EscapeString(msg))
		_, err := w.Write(buf.Bytes())
		return err
	})
}

func head(buf *bytes.Buffer, title string) {
	fmt.Fprintf(buf, "<!doctype html>\n<html lang=\"en\"><head><meta charset=\"utf-8\"><title>%s</title><style>%s</style></head><body>\n",
		html.EscapeString(title), pageStyle)
}
