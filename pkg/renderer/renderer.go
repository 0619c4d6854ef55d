/*
Copyright 2024 The Nuclio Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package renderer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/nuclio/errors"
	"sigs.k8s.io/yaml"
)

const (
	OutputFormatText = "text"
	OutputFormatYAML = "yaml"
	OutputFormatJSON = "json"
)

// Renderer writes command output as a table, YAML or JSON
type Renderer struct {
	output io.Writer
}

func NewRenderer(output io.Writer) *Renderer {
	return &Renderer{
		output: output,
	}
}

// Render writes items in the given format. text renders header and records as a table
func (r *Renderer) Render(outputFormat string, header []interface{}, records [][]interface{}, items interface{}) error {
	switch outputFormat {
	case OutputFormatText, "":
		r.RenderTable(header, records)
		return nil
	case OutputFormatYAML:
		return r.RenderYAML(items)
	case OutputFormatJSON:
		return r.RenderJSON(items)
	default:
		return errors.New(fmt.Sprintf("Unknown output format %q", outputFormat))
	}
}

func (r *Renderer) RenderTable(header []interface{}, records [][]interface{}) {
	tableWriter := table.NewWriter()
	tableWriter.SetOutputMirror(r.output)
	tableWriter.SetStyle(table.Style{
		Name: "rpcruntime",
		Box: table.BoxStyle{
			MiddleVertical: "|",
			PaddingLeft:    " ",
			PaddingRight:   " ",
		},
		Options: table.Options{
			DoNotColorBordersAndSeparators: true,
			DrawBorder:                     false,
			SeparateColumns:                true,
			SeparateFooter:                 false,
			SeparateHeader:                 false,
			SeparateRows:                   false,
		},
		Color:  table.ColorOptionsDefault,
		Format: table.FormatOptionsDefault,
		HTML:   table.DefaultHTMLOptions,
		Title:  table.TitleOptionsDefault,
	})

	tableWriter.AppendHeader(table.Row(header), table.RowConfig{})

	for _, record := range records {
		tableWriter.AppendRow(table.Row(record), table.RowConfig{})
	}

	tableWriter.Render()
}

func (r *Renderer) RenderYAML(items interface{}) error {
	body, err := yaml.Marshal(items)
	if err != nil {
		return errors.Wrap(err, "Failed to render YAML")
	}

	fmt.Fprint(r.output, string(body)) // nolint: errcheck

	return nil
}

func (r *Renderer) RenderJSON(items interface{}) error {
	body, err := json.Marshal(items)
	if err != nil {
		return errors.Wrap(err, "Failed to render JSON")
	}

	var indentedBody bytes.Buffer
	if err := json.Indent(&indentedBody, body, "", "\t"); err != nil {
		return errors.Wrap(err, "Failed to indent JSON")
	}

	fmt.Fprintln(r.output, indentedBody.String()) // nolint: errcheck

	return nil
}
