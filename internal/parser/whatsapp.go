package parser

import (
	"bufio"
	"fmt"
	"io"
	"iter"
	"regexp"
	"strings"
)

// 匹配消息头: "12/5/23, 10:30 AM - Alice: hello there"
// 发送者非贪婪，截止到第一个 ": "；名字里含 ": " 时会被错切，这里保持原样
var headerRe = regexp.MustCompile(`^(\d{1,2}/\d{1,2}/\d{2,4}), (\d{1,2}:\d{2}(?: [APMapm]{2})?) - (.*?): (.*)`)

// ClassifyLine 判断一行是否为消息头，是则返回对应记录
func ClassifyLine(line string) (Record, bool) {
	m := headerRe.FindStringSubmatch(line)
	if m == nil {
		return Record{}, false
	}
	return Record{
		Date:    m[1],
		Time:    m[2],
		Sender:  m[3],
		Message: m[4],
	}, true
}

// Detect 只要有一行符合消息头格式就返回 true，不构建记录
func Detect(raw string) bool {
	for line := range strings.Lines(Normalize(raw)) {
		if headerRe.MatchString(strings.TrimSuffix(line, "\n")) {
			return true
		}
	}
	return false
}

// Parse 逐行解析，不匹配的行（续行、PDF 残留等）直接丢弃
func Parse(raw string) []Record {
	records := []Record{}
	for line := range strings.Lines(Normalize(raw)) {
		if r, ok := ClassifyLine(strings.TrimSuffix(line, "\n")); ok {
			records = append(records, r)
		}
	}
	return records
}

// ParseReader 与 Parse 相同，但按行流式读取，适合大文件
func ParseReader(r io.Reader) ([]Record, error) {
	records := []Record{}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024) // 1MB buffer
	scanner.Split(scanLines)

	for scanner.Scan() {
		if rec, ok := ClassifyLine(scanner.Text()); ok {
			records = append(records, rec)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan transcript: %w", err)
	}
	return records, nil
}

// Normalize 统一换行符为 \n
func Normalize(raw string) string {
	if !strings.Contains(raw, "\r") {
		return raw
	}
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	return strings.ReplaceAll(raw, "\r", "\n")
}

// Lines 按 \n、\r\n 或单独的 \r 切行，每行保留原有的行尾
// 拼接所有行即为原文，用于需要按原文计数字符的场景
func Lines(raw string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for raw != "" {
			n := len(raw)
			if i := strings.IndexAny(raw, "\r\n"); i >= 0 {
				n = i + 1
				if raw[i] == '\r' && n < len(raw) && raw[n] == '\n' {
					n++
				}
			}
			if !yield(raw[:n]) {
				return
			}
			raw = raw[n:]
		}
	}
}

// TrimEOL 去掉 Lines 产出的行尾
func TrimEOL(line string) string {
	return strings.TrimRight(line, "\r\n")
}

// scanLines 在 bufio.ScanLines 基础上把单独的 \r 也当作行尾
func scanLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	for i, b := range data {
		switch b {
		case '\n':
			return i + 1, data[:i], nil
		case '\r':
			if i+1 < len(data) {
				if data[i+1] == '\n' {
					return i + 2, data[:i], nil
				}
				return i + 1, data[:i], nil
			}
			if atEOF {
				return i + 1, data[:i], nil
			}
			// 需要看下一个字节才能确定是不是 \r\n
			return 0, nil, nil
		}
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
