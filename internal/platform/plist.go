package platform

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"
	"text/template"

	"sessionkeeper/internal/schedule"
)

const launchdPath = "/opt/homebrew/bin:/usr/local/bin:/usr/bin:/bin:/usr/sbin:/sbin"

type plistJob struct {
	Label     string
	UserName  string
	Args      []string
	Times     []schedule.TimeOfDay
	RunAtLoad bool
	LogPath   string
	Path      string
}

var plistTmpl = template.Must(template.New("plist").Funcs(template.FuncMap{"x": xmlText}).Parse(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>{{x .Label}}</string>
{{- if .UserName}}
	<key>UserName</key>
	<string>{{x .UserName}}</string>
{{- end}}
	<key>ProgramArguments</key>
	<array>
{{- range .Args}}
		<string>{{x .}}</string>
{{- end}}
	</array>
	<key>StartCalendarInterval</key>
	<array>
{{- range .Times}}
		<dict>
			<key>Hour</key>
			<integer>{{.Hour}}</integer>
			<key>Minute</key>
			<integer>{{.Minute}}</integer>
		</dict>
{{- end}}
	</array>
	<key>RunAtLoad</key>
	{{if .RunAtLoad}}<true/>{{else}}<false/>{{end}}
	<key>EnvironmentVariables</key>
	<dict>
		<key>PATH</key>
		<string>{{x .Path}}</string>
	</dict>
{{- if .LogPath}}
	<key>StandardOutPath</key>
	<string>{{x .LogPath}}</string>
	<key>StandardErrorPath</key>
	<string>{{x .LogPath}}</string>
{{- end}}
</dict>
</plist>
`))

func renderPlist(j plistJob) ([]byte, error) {
	if j.Path == "" {
		j.Path = launchdPath
	}
	var buf bytes.Buffer
	if err := plistTmpl.Execute(&buf, j); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func xmlText(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

// checkXML reports whether b is well-formed XML. b is UTF-8 in memory even
// when its declaration names the charset of the file written to disk.
func checkXML(b []byte) error {
	dec := xml.NewDecoder(bytes.NewReader(b))
	dec.Strict = true
	dec.CharsetReader = func(_ string, in io.Reader) (io.Reader, error) { return in, nil }
	for {
		_, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
