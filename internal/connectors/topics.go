package connectors

const (
	TopicConnStatus  = "conn.status"
	TopicRawFrameIn  = "raw.frame.in"
	TopicRawFrameOut = "raw.frame.out"
	TopicUnsolicited = "frame.unsolicited"
	TopicTransaction = "transaction"
	TopicAuth        = "auth"
)
