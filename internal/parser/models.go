package parser

import (
	"errors"
	"fmt"
)

// ErrFormatMismatch 上传内容中没有任何一行符合消息头格式
var ErrFormatMismatch = errors.New("text does not look like a WhatsApp chat export")

// Record 单条聊天消息，四个字段均为原样捕获，不做日期/时间归一化
type Record struct {
	Date    string `json:"date"`
	Time    string `json:"time"`
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

// String 还原为导出文件中的行格式
func (r Record) String() string {
	return fmt.Sprintf("%s, %s - %s: %s", r.Date, r.Time, r.Sender, r.Message)
}

// Transcript 一次上传的原始文本及解析出的消息
// Raw 上传后不再修改；重新上传时整体替换
type Transcript struct {
	Raw     string
	Records []Record
}

// NewTranscript 先做格式检测，通过后再完整解析；Raw 保留上传的原文，包括 \r\n
func NewTranscript(raw string) (*Transcript, error) {
	if !Detect(raw) {
		return nil, ErrFormatMismatch
	}
	return &Transcript{
		Raw:     raw,
		Records: Parse(raw),
	}, nil
}

// Senders 按首次出现顺序返回去重后的发送者
func (t *Transcript) Senders() []string {
	if t == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, r := range t.Records {
		if _, ok := seen[r.Sender]; ok {
			continue
		}
		seen[r.Sender] = struct{}{}
		out = append(out, r.Sender)
	}
	return out
}
