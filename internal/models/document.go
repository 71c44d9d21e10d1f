package models

// DocumentContext is the extracted text of the document currently loaded for
// document chat. The zero value means no document is loaded.
type DocumentContext struct {
	Filename string
	Text     string
}

func (d DocumentContext) Loaded() bool {
	return d.Text != ""
}

// Upload is a file picked by the user before it is sent for extraction.
type Upload struct {
	Filename string
	Size     int64
	Metadata map[string]interface{}
}
