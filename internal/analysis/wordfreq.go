package analysis

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/liao/chat-analyst/internal/parser"
)

// DefaultTopN 默认返回的高频词数量
const DefaultTopN = 10

// 触发本地统计的关键词，纯子串匹配
var triggerPhrases = []string{"top words", "most common words"}

var wordRe = regexp.MustCompile(`[\p{L}\p{N}_]+`)

var stopwords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`the and to of in a is for on with at by an be this that
		it are as from was but or so if i you we he she they me
		my your our us him her them just not`) {
		stopwords[w] = struct{}{}
	}
}

// WordCount 词及其出现次数
type WordCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// IsTopWordsQuery 问题里是否包含触发短语（不区分大小写）
func IsTopWordsQuery(question string) bool {
	lower := strings.ToLower(question)
	for _, p := range triggerPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// TopWords 统计所有消息中的高频词
// 次数相同的按首次出现顺序排列
func TopWords(records []parser.Record, n int) []WordCount {
	if n <= 0 {
		n = DefaultTopN
	}

	messages := make([]string, 0, len(records))
	for _, r := range records {
		messages = append(messages, r.Message)
	}
	text := strings.ToLower(strings.Join(messages, " "))

	counts := make(map[string]int)
	var order []string
	for _, w := range wordRe.FindAllString(text, -1) {
		if _, stop := stopwords[w]; stop {
			continue
		}
		if utf8.RuneCountInString(w) <= 2 {
			continue
		}
		if counts[w] == 0 {
			order = append(order, w)
		}
		counts[w]++
	}

	result := make([]WordCount, 0, len(order))
	for _, w := range order {
		result = append(result, WordCount{Word: w, Count: counts[w]})
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Count > result[j].Count
	})

	if len(result) > n {
		result = result[:n]
	}
	return result
}

// FormatTopWords 把统计结果格式化为回复文本
func FormatTopWords(words []WordCount) string {
	if len(words) == 0 {
		return "No qualifying words found in this chat."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Here are the top %d most common words in this chat:\n", len(words))
	for i, w := range words {
		fmt.Fprintf(&b, "%d. %s (%d)\n", i+1, w.Word, w.Count)
	}
	return strings.TrimRight(b.String(), "\n")
}
