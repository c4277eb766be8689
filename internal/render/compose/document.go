package compose

import (
	"fmt"
	"strings"
)

type documentParams struct {
	Width            int
	Height           int
	CanvasElement    string
	DevicePixelRatio float64
	EscapedDataJSON  string
	CDNUrl           string
	InitScript       string
}

const documentTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Render</title>
    <style>
        * {
            margin: 0;
            padding: 0;
            box-sizing: border-box;
        }
        body {
            background: white;
            overflow: hidden;
            display: flex;
            align-items: center;
            justify-content: center;
        }
        #render-container {
            width: %dpx;
            height: %dpx;
        }
        #chart-canvas {
            display: block;
        }
    </style>
</head>
<body>
    <div id="render-container">
        %s
    </div>

    <script>
        window.devicePixelRatio = %v;
        const dataJson = '%s';
    </script>
    <script src="%s"></script>

    <script>
        window.renderReady = false;
        window.renderError = null;

        window.addEventListener('DOMContentLoaded', () => {
            try {
                %s
            } catch (error) {
                console.error('Render initialization error:', error);
                window.renderError = error.message;
            }
        });
    </script>
</body>
</html>`

// renderDocument assembles the final HTML document per the page protocol:
// a #render-container sized exactly to (width, height), an optional
// #chart-canvas child, devicePixelRatio set before the CDN script loads, and
// the init script run inside a try/catch on DOMContentLoaded.
func renderDocument(p documentParams) string {
	var b strings.Builder
	fmt.Fprintf(&b, documentTemplate,
		p.Width, p.Height,
		p.CanvasElement,
		p.DevicePixelRatio, p.EscapedDataJSON,
		p.CDNUrl,
		p.InitScript,
	)
	return b.String()
}
