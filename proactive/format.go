package proactive

// Shard and message type names used across the queue, the shards, and the
// persisted ActiveThought documents.
const (
	ShardCurator = "curator"
	ShardThinker = "thinker"

	TypeSignificantPattern = "significant_pattern"
	TypeInformationGap     = "information_gap"
	TypeAnalysis           = "analysis"
	TypeCyclicalInsight    = "cyclical_insight"
)

// Format renders a message for display with a prefix derived from its
// origin. Pure function, no queue state involved.
func Format(msg Message) string {
	return prefix(msg.ShardType, msg.MessageType) + msg.Content
}

func prefix(shardType, messageType string) string {
	switch shardType {
	case ShardCurator:
		if messageType == TypeInformationGap {
			return "Quick question: "
		}
		return "Something I noticed: "
	case ShardThinker:
		if messageType == TypeCyclicalInsight {
			return "I've been connecting some dots: "
		}
		return "I was thinking about this: "
	default:
		return "By the way: "
	}
}
