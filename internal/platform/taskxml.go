package platform

import (
	"encoding/xml"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/unicode"

	"sessionkeeper/internal/schedule"
)

const taskNamespace = "http://schemas.microsoft.com/windows/2004/02/mit/task"

type taskDoc struct {
	XMLName          xml.Name       `xml:"Task"`
	Version          string         `xml:"version,attr"`
	Xmlns            string         `xml:"xmlns,attr"`
	RegistrationInfo taskRegInfo    `xml:"RegistrationInfo"`
	Triggers         taskTriggers   `xml:"Triggers"`
	Principals       taskPrincipals `xml:"Principals"`
	Settings         taskSettings   `xml:"Settings"`
	Actions          taskActions    `xml:"Actions"`
}

type taskRegInfo struct {
	Description string `xml:"Description"`
	URI         string `xml:"URI"`
}

type taskTriggers struct {
	Calendar []calendarTrigger `xml:"CalendarTrigger"`
}

type calendarTrigger struct {
	StartBoundary string `xml:"StartBoundary"`
	Enabled       bool   `xml:"Enabled"`
	ScheduleByDay struct {
		DaysInterval int `xml:"DaysInterval"`
	} `xml:"ScheduleByDay"`
}

type taskPrincipals struct {
	Principal struct {
		ID        string `xml:"id,attr"`
		LogonType string `xml:"LogonType"`
		RunLevel  string `xml:"RunLevel"`
	} `xml:"Principal"`
}

type taskSettings struct {
	MultipleInstancesPolicy    string `xml:"MultipleInstancesPolicy"`
	DisallowStartIfOnBatteries bool   `xml:"DisallowStartIfOnBatteries"`
	StopIfGoingOnBatteries     bool   `xml:"StopIfGoingOnBatteries"`
	AllowHardTerminate         bool   `xml:"AllowHardTerminate"`
	StartWhenAvailable         bool   `xml:"StartWhenAvailable"`
	RunOnlyIfNetworkAvailable  bool   `xml:"RunOnlyIfNetworkAvailable"`
	IdleSettings               struct {
		StopOnIdleEnd bool `xml:"StopOnIdleEnd"`
		RestartOnIdle bool `xml:"RestartOnIdle"`
	} `xml:"IdleSettings"`
	AllowStartOnDemand bool   `xml:"AllowStartOnDemand"`
	Enabled            bool   `xml:"Enabled"`
	Hidden             bool   `xml:"Hidden"`
	RunOnlyIfIdle      bool   `xml:"RunOnlyIfIdle"`
	WakeToRun          bool   `xml:"WakeToRun"`
	ExecutionTimeLimit string `xml:"ExecutionTimeLimit"`
	Priority           int    `xml:"Priority"`
}

type taskActions struct {
	Context string `xml:"Context,attr"`
	Exec    struct {
		Command   string `xml:"Command"`
		Arguments string `xml:"Arguments,omitempty"`
	} `xml:"Exec"`
}

// renderTaskXML builds the task definition for one daily entry.
func renderTaskXML(name string, at schedule.TimeOfDay, wake bool, argv []string) ([]byte, error) {
	var d taskDoc
	d.Version = "1.2"
	d.Xmlns = taskNamespace
	d.RegistrationInfo.Description = "SessionKeeper job at " + at.String()
	d.RegistrationInfo.URI = `\` + name

	tr := calendarTrigger{StartBoundary: fmt.Sprintf("2024-01-01T%02d:%02d:00", at.Hour(), at.Minute()), Enabled: true}
	tr.ScheduleByDay.DaysInterval = 1
	d.Triggers.Calendar = []calendarTrigger{tr}

	d.Principals.Principal.ID = "Author"
	d.Principals.Principal.LogonType = "InteractiveToken"
	d.Principals.Principal.RunLevel = "HighestAvailable"

	d.Settings = taskSettings{
		MultipleInstancesPolicy: "IgnoreNew",
		AllowHardTerminate:      true,
		StartWhenAvailable:      true,
		AllowStartOnDemand:      true,
		Enabled:                 true,
		WakeToRun:               wake,
		ExecutionTimeLimit:      "PT1H",
		Priority:                7,
	}

	d.Actions.Context = "Author"
	if len(argv) > 0 {
		d.Actions.Exec.Command = argv[0]
		d.Actions.Exec.Arguments = windowsCommandLine(argv[1:])
	}

	body, err := xml.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(`<?xml version="1.0" encoding="UTF-16"?>`+"\n"), body...), nil
}

// utf16File encodes an XML document as UTF-16LE with a BOM, which is what
// schtasks expects for /xml imports.
func utf16File(b []byte) ([]byte, error) {
	return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder().Bytes(b)
}

// windowsCommandLine joins args using the CommandLineToArgvW quoting rules.
func windowsCommandLine(args []string) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = windowsArg(a)
	}
	return strings.Join(parts, " ")
}

func windowsArg(s string) string {
	if s == "" {
		return `""`
	}
	if !strings.ContainsAny(s, " \t\"") {
		return s
	}
	var b strings.Builder
	b.WriteByte('"')
	slashes := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			slashes++
		case '"':
			b.WriteString(strings.Repeat(`\`, slashes+1))
			slashes = 0
		default:
			slashes = 0
		}
		b.WriteByte(s[i])
	}
	b.WriteString(strings.Repeat(`\`, slashes))
	b.WriteByte('"')
	return b.String()
}
