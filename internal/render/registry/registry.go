// Package registry holds the process-wide, immutable mapping from a
// visualization library name to the HTML scaffold that renders it: the CDN
// URL pattern to load, the selector the page composer guarantees exists in
// the DOM, and the initialization script that wires caller data into the
// library's API.
package registry

import "fmt"

// Template is an immutable, process-wide library entry. CDNURLPattern
// contains the literal token "{version}"; InitScript contains zero or more
// of the literal tokens "{data}", "{width}", "{height}".
type Template struct {
	Name           string
	CDNURLPattern  string
	WaitSelector   string
	InitScript     string
	// HasDedicatedCanvas is true for libraries (chartjs) whose scaffold needs
	// a <canvas id="chart-canvas"> element rather than a bare container div.
	HasDedicatedCanvas bool
}

// Info is the subset of a Template surfaced by GET /libraries.
type Info struct {
	Name          string `json:"name"`
	CDNURLPattern string `json:"cdn_url_pattern"`
	WaitSelector  string `json:"wait_selector"`
}

var registry = map[string]Template{
	"apache-echarts": {
		Name:          "apache-echarts",
		CDNURLPattern: "https://cdn.jsdelivr.net/npm/echarts@{version}/dist/echarts.min.js",
		WaitSelector:  "#render-container",
		InitScript: `
			const chart = echarts.init(document.getElementById('render-container'));
			chart.setOption({data});
			window.renderReady = true;
		`,
	},
	"chartjs": {
		Name:               "chartjs",
		CDNURLPattern:      "https://cdn.jsdelivr.net/npm/chart.js@{version}/dist/chart.umd.js",
		WaitSelector:       "#chart-canvas",
		HasDedicatedCanvas: true,
		InitScript: `
			const ctx = document.getElementById('chart-canvas').getContext('2d');
			new Chart(ctx, {data});
			window.renderReady = true;
		`,
	},
	"konvajs": {
		Name:          "konvajs",
		CDNURLPattern: "https://unpkg.com/konva@{version}/konva.min.js",
		WaitSelector:  "#render-container",
		InitScript: `
			const stage = new Konva.Stage({
				container: 'render-container',
				width: {width},
				height: {height}
			});
			const layer = new Konva.Layer();
			stage.add(layer);

			const config = {data};
			if (config.shapes) {
				config.shapes.forEach(shape => {
					const konvaShape = new Konva[shape.type](shape.config);
					layer.add(konvaShape);
				});
			}

			layer.draw();
			window.renderReady = true;
		`,
	},
}

// ErrUnsupportedLibrary is returned when a lookup names a library absent
// from the registry.
type ErrUnsupportedLibrary struct {
	Name string
}

func (e *ErrUnsupportedLibrary) Error() string {
	return fmt.Sprintf("unsupported library %q", e.Name)
}

// Lookup resolves a library name to its template.
func Lookup(name string) (Template, error) {
	tmpl, ok := registry[name]
	if !ok {
		return Template{}, &ErrUnsupportedLibrary{Name: name}
	}
	return tmpl, nil
}

// List returns every registered library, ordered by name, for the
// GET /libraries adapter.
func List() []Info {
	out := make([]Info, 0, len(registry))
	for _, tmpl := range registry {
		out = append(out, Info{
			Name:          tmpl.Name,
			CDNURLPattern: tmpl.CDNURLPattern,
			WaitSelector:  tmpl.WaitSelector,
		})
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Name < out[j-1].Name; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
