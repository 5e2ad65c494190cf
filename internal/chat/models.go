package chat

import "time"

// Message is one persisted exchange: the user's query and the model's
// complete answer. conversation_id groups a user's exchanges with one
// model; history assembly reads the latest rows per conversation.
type Message struct {
	MessageID        uint64    `gorm:"primaryKey;autoIncrement" json:"messageId"`
	BotName          string    `gorm:"type:varchar(128);not null" json:"botName"`
	UserID           string    `gorm:"type:varchar(36);not null;index" json:"userId"`
	UserName         string    `gorm:"type:varchar(64)" json:"userName"`
	ConversationID   string    `gorm:"type:varchar(191);not null;index" json:"conversationId"`
	TotalTokenNumber int       `gorm:"not null;default:0" json:"totalTokenNumber"`
	QueryContent     string    `gorm:"type:text;not null" json:"queryContent"`
	QueryType        string    `gorm:"type:varchar(16);default:'text'" json:"queryType"`
	QueryTokens      int       `gorm:"not null;default:0" json:"queryTokens"`
	AnswerContent    string    `gorm:"type:mediumtext" json:"answerContent"`
	AnswerType       string    `gorm:"type:varchar(16);default:'text'" json:"answerType"`
	AnswerTokens     int       `gorm:"not null;default:0" json:"answerTokens"`
	CreatedAt        time.Time `json:"createdAt"`
}

func (Message) TableName() string { return "messages" }

// ConversationID derives the history grouping key for a user/model
// pair. Conversations are implicit: same user, same model, same id.
func ConversationID(modelName, userUUID string) string {
	return modelName + "_" + userUUID
}
