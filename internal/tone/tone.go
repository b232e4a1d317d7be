// Package tone maps each persona to the message templates used for
// celebrations, report encouragement, fallback feedback and the AI system
// instruction. The table is built once at package init and looked up by persona.
package tone

import (
	"fmt"
	"math"

	"github.com/BTreeMap/HabitLine/internal/models"
)

// ---- Tiers ----

// Tier is a completion-rate band used to pick encouragement.
type Tier int

const (
	TierLow Tier = iota
	TierMedium
	TierHigh
)

// Report encouragement thresholds, in percent.
const (
	HighRateThreshold   = 70.0
	MediumRateThreshold = 40.0
)

// TierFor classifies a completion rate given in percent.
func TierFor(ratePercent float64) Tier {
	switch {
	case ratePercent >= HighRateThreshold:
		return TierHigh
	case ratePercent >= MediumRateThreshold:
		return TierMedium
	default:
		return TierLow
	}
}

// ---- Voices ----

// Voice holds every persona-specific message kind.
type Voice struct {
	// Celebrate is sent after a habit is marked done.
	Celebrate func(title string, streak int) string
	// Fallback replaces AI feedback when the completion call fails.
	Fallback func(completed, total int) string
	// Encouragement closes the weekly report, indexed by Tier.
	Encouragement [3]string
	// Instruction is the persona line of the AI system prompt.
	Instruction string
}

// Encourage returns the closing line for a weekly completion rate in percent.
func (v Voice) Encourage(ratePercent float64) string {
	return v.Encouragement[TierFor(ratePercent)]
}

var voices = map[models.Persona]Voice{
	models.PersonaAngel: {
		Celebrate: func(title string, streak int) string {
			return fmt.Sprintf("素晴らしい！✨ %sを達成しました！\n連続%d日です。天使があなたを見守っています。", title, streak)
		},
		Fallback: func(completed, total int) string {
			return fmt.Sprintf("今日も頑張りましたね！✨ %dつの習慣を達成できました。明日も一緒に続けていきましょう。", completed)
		},
		Encouragement: [3]string{
			TierLow:    "どんな小さな一歩も、前進です🌟 来週は一緒にもう少し頑張りましょう。",
			TierMedium: "頑張っていますね！💫 完璧でなくても大丈夫。続けることが一番大切です。",
			TierHigh:   "素晴らしい一週間でした！✨ あなたの努力は必ず実を結びます。来週も見守っています。",
		},
		Instruction: "天使のように優しく、温かく励ましてください。",
	},
	models.PersonaCoach: {
		Celebrate: func(title string, streak int) string {
			return fmt.Sprintf("よくやった！💪 %sクリア！\n%d日連続だ。この調子で続けろ！", title, streak)
		},
		Fallback: func(completed, total int) string {
			return fmt.Sprintf("よくやった！%d習慣クリアだ💪 明日はもっと上を目指そう！", completed)
		},
		Encouragement: [3]string{
			TierLow:    "気合が足りないぞ！💢 でも諦めるな！来週は必ずやり遂げろ！",
			TierMedium: "まだまだいける！🔥 もっと上を目指そう！あと一歩だ！",
			TierHigh:   "よくやった！この調子だ！💪 目標達成に向けて突き進め！",
		},
		Instruction: "熱血コーチのように力強く、時に厳しく激励してください。",
	},
	models.PersonaFriend: {
		Celebrate: func(title string, streak int) string {
			return fmt.Sprintf("やったね！🎉 %s完了！\n%d日連続、すごいよ！", title, streak)
		},
		Fallback: func(completed, total int) string {
			return fmt.Sprintf("お疲れさま！今日は%d個できたね🎉 明日も一緒に頑張ろう！", completed)
		},
		Encouragement: [3]string{
			TierLow:    "ちょっと大変だったかな？😅 でも続けてるのが偉い！来週は一緒に頑張ろう！",
			TierMedium: "いい感じだよ！😊 マイペースで大丈夫。応援してるからね！",
			TierHigh:   "すごいね！🎉 一緒に頑張ってて嬉しいよ！来週も楽しくいこう！",
		},
		Instruction: "親友のようにフレンドリーで、共感的に応援してください。",
	},
	models.PersonaAnalyst: {
		Celebrate: func(title string, streak int) string {
			return fmt.Sprintf("記録完了。%sの実行を確認。\n現在の連続記録: %d日。統計的に良好です。", title, streak)
		},
		Fallback: func(completed, total int) string {
			return fmt.Sprintf("本日の達成率: %d%%。統計的に良好です📊", Percent(completed, total))
		},
		Encouragement: [3]string{
			TierLow:    "達成率が低めです📉 習慣の見直しまたは目標の調整を検討してください。",
			TierMedium: "平均的な達成率です📈 改善の余地がありますが、継続できています。",
			TierHigh:   "高い達成率です📊 このパフォーマンスを維持することを推奨します。",
		},
		Instruction: "冷静なアナリストのように客観的で、データに基づいた分析を提供してください。",
	},
}

// FallbackPersona is used for unknown persona values.
const FallbackPersona = models.PersonaFriend

// For returns the voice of persona p, falling back to FallbackPersona.
func For(p models.Persona) Voice {
	if v, ok := voices[p]; ok {
		return v
	}
	return voices[FallbackPersona]
}

// ---- Prompt guide ----

// FeedbackSystemPrompt builds the system instruction for the daily feedback call.
func FeedbackSystemPrompt(p models.Persona) string {
	return "あなたはポジティブで論理的な習慣コーチです。\n" +
		For(p).Instruction + "\n\n" +
		"ユーザーの今日の習慣記録を分析し、120〜200文字で以下を含むフィードバックを生成してください:\n" +
		"1. 今日の良い点を具体的に称賛\n" +
		"2. 明日のための1つの超具体的なアクションを提案\n" +
		"3. 最後に短い励まし(絵文字1つ)\n\n" +
		"必ず日本語で回答してください。"
}

// Percent returns round(part/total*100), or 0 when total is 0.
func Percent(part, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(total) * 100))
}
