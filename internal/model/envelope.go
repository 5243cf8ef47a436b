package model

// Field is one human-readable entry of a run summary. Alias is the short
// latin name shown next to Name in the terminal. Local fields (paths on the
// build machine) are printed in the terminal but never sent to a webhook.
type Field struct {
	Name  string
	Alias string
	Value string
	Local bool
}

// Info is an ordered list of fields.
type Info []Field

// Remote returns the fields that may leave the machine.
func (i Info) Remote() Info {
	out := make(Info, 0, len(i))
	for _, f := range i {
		if !f.Local {
			out = append(out, f)
		}
	}
	return out
}

// Get returns the value of the first field named name.
func (i Info) Get(name string) (string, bool) {
	for _, f := range i {
		if f.Name == name || (f.Alias != "" && f.Alias == name) {
			return f.Value, true
		}
	}
	return "", false
}

// Image is either an InlineImage or a HostedImageRef.
type Image interface {
	isImage()
}

// InlineImage carries the artifact itself, as Work Weixin's image message expects.
type InlineImage struct {
	Base64 string `json:"base64"`
	MD5    string `json:"md5"`
}

// HostedImageRef points to an artifact uploaded elsewhere.
type HostedImageRef struct {
	URL string
}

func (InlineImage) isImage()    {}
func (HostedImageRef) isImage() {}

// Envelope is the notification of one run.
type Envelope struct {
	Type  RunType
	Info  Info
	Image Image // preview only
}

func UploadEnvelope(info Info) Envelope {
	return Envelope{Type: RunTypeUpload, Info: info}
}

func PreviewEnvelope(info Info, image Image) Envelope {
	return Envelope{Type: RunTypePreview, Info: info, Image: image}
}

// Title is the bold heading used by chat channels.
func (e Envelope) Title() string {
	if e.Type == RunTypeUpload {
		return "小程序版本上传"
	}
	return "小程序版本预览"
}
