// ABOUTME: Prompt templates for the two-stage memory model protocol
// ABOUTME: Gate prompts expect yes/no style replies; generators emit markdown lists
package memory

import (
	"fmt"
	"strings"
)

// The gate decision rule keys off these characters: a reply containing
// either is treated as negative.
const (
	negativeNo  = "不"
	negativeNeg = "否"
)

// gateIsPositive applies the gate decision rule: non-empty and containing
// neither negative character.
func gateIsPositive(reply string) bool {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return false
	}
	return !strings.Contains(reply, negativeNo) && !strings.Contains(reply, negativeNeg)
}

// deletionGateIsPositive applies the deletion-gate rule: the prompt demands
// 需要 / 不需要, so 不需要 must be checked before 需要.
func deletionGateIsPositive(reply string) bool {
	reply = strings.TrimSpace(reply)
	if reply == "" || strings.Contains(reply, "不需要") {
		return false
	}
	return strings.Contains(reply, "需要")
}

func gatePrompt(currentMemory, newUserText string) string {
	if currentMemory == "" {
		currentMemory = "（暂无记忆）"
	}
	return fmt.Sprintf(`你是一个记忆管理助手。下面是当前已记录的用户记忆，以及用户最近的新输入。

当前记忆：
%s

用户新输入：
%s

请判断：新输入中是否包含值得记住的、关于用户本人的新信息（例如喜好、经历、习惯、人际关系、重要事件）？
如果有，回复"是"；如果没有，回复"否"。只回复一个字，不要解释。`, currentMemory, newUserText)
}

func generatePrompt(persona, userPersona, currentMemory, newUserText string) string {
	var b strings.Builder
	b.WriteString("你是一个记忆整理助手，负责维护一份关于用户的记忆清单。\n\n")
	if persona != "" {
		b.WriteString("角色设定：\n" + persona + "\n\n")
	}
	if userPersona != "" {
		b.WriteString("用户设定：\n" + userPersona + "\n\n")
	}
	if currentMemory != "" {
		b.WriteString("当前记忆清单：\n" + currentMemory + "\n\n")
	} else {
		b.WriteString("当前记忆清单为空。\n\n")
	}
	b.WriteString("用户新输入：\n" + newUserText + "\n\n")
	b.WriteString(`请把新输入中值得记住的信息合并进记忆清单，去掉重复和过时的条目。
要求：
1. 直接输出完整的新记忆清单，markdown 列表格式（每行以 - 开头）
2. 不要输出任何前言、解释或代码块标记
3. 条目简洁，一条一个事实`)
	return b.String()
}

func deletionGatePrompt(currentMemory, deletedText string) string {
	return fmt.Sprintf(`用户删除了部分聊天消息。下面是当前记忆清单和被删除的用户消息。

当前记忆清单：
%s

被删除的消息：
%s

请判断：当前记忆中是否存在基于这些被删除消息的内容，需要随之删除？
需要请回复"需要"，不需要请回复"不需要"。只回复这两个词之一，不要解释。`, currentMemory, deletedText)
}

func deletionGeneratePrompt(currentMemory, deletedText string) string {
	return fmt.Sprintf(`用户删除了部分聊天消息，请从记忆清单中移除基于这些消息的条目。

当前记忆清单：
%s

被删除的消息：
%s

要求：
1. 直接输出删减后的完整记忆清单，markdown 列表格式（每行以 - 开头）
2. 不要输出任何前言、解释或代码块标记
3. 与被删除消息无关的条目保持原样`, currentMemory, deletedText)
}

func globalGatePrompt(currentMemory, forumContent string) string {
	if currentMemory == "" {
		currentMemory = "（暂无记忆）"
	}
	return fmt.Sprintf(`你是一个全局记忆管理助手。下面是当前的全局用户记忆，以及用户最近发布的论坛内容。

当前全局记忆：
%s

论坛内容：
%s

请判断：论坛内容中是否包含值得记住的、关于用户的新信息？
如果有，回复"是"；如果没有，回复"否"。只回复一个字，不要解释。`, currentMemory, forumContent)
}

func globalGeneratePrompt(currentMemory, forumContent string) string {
	var b strings.Builder
	b.WriteString("你是一个全局记忆整理助手，负责维护一份跨场景的用户记忆。\n\n")
	if currentMemory != "" {
		b.WriteString("当前全局记忆：\n" + currentMemory + "\n\n")
	} else {
		b.WriteString("当前全局记忆为空。\n\n")
	}
	b.WriteString("论坛内容：\n" + forumContent + "\n\n")
	b.WriteString(`请把论坛内容中值得记住的信息合并进全局记忆。
要求：
1. 直接输出完整的新记忆，markdown 列表格式（每行以 - 开头）
2. 不要输出任何前言、解释或代码块标记`)
	return b.String()
}
