package rtmp

// RTMP 메시지 타입 상수
const (
	MSG_TYPE_SET_CHUNK_SIZE     = 1
	MSG_TYPE_ABORT              = 2
	MSG_TYPE_ACKNOWLEDGEMENT    = 3
	MSG_TYPE_USER_CONTROL       = 4
	MSG_TYPE_WINDOW_ACK_SIZE    = 5
	MSG_TYPE_SET_PEER_BW        = 6
	MSG_TYPE_AUDIO              = 8
	MSG_TYPE_VIDEO              = 9
	MSG_TYPE_AMF3_DATA          = 15
	MSG_TYPE_AMF3_SHARED_OBJECT = 16
	MSG_TYPE_AMF3_COMMAND       = 17
	MSG_TYPE_AMF0_DATA          = 18
	MSG_TYPE_AMF0_SHARED_OBJECT = 19
	MSG_TYPE_AMF0_COMMAND       = 20
	MSG_TYPE_AGGREGATE          = 22
)

// 청크 스트림 ID 상수
const (
	CHUNK_STREAM_PROTOCOL = 2 // flow control: chunk size, bandwidth, ping
	CHUNK_STREAM_COMMAND  = 3 // connection level invokes (connect, createStream)
	CHUNK_STREAM_DATA     = 4 // first data channel, see ChannelForStream
)

// User control (ping) event types
const (
	PING_STREAM_BEGIN            = 0
	PING_STREAM_PLAYBUFFER_CLEAR = 1
	PING_STREAM_DRY              = 2
	PING_CLIENT_BUFFER           = 3
	PING_RECORDED_STREAM         = 4
	PING_CLIENT                  = 6
	PONG_SERVER                  = 7
	PING_SWF_VERIFY              = 26
	PONG_SWF_VERIFY              = 27
	PING_BUFFER_EMPTY            = 31
	PING_BUFFER_FULL             = 32
)

// Set peer bandwidth limit types
const (
	LIMIT_TYPE_HARD    = 0
	LIMIT_TYPE_SOFT    = 1
	LIMIT_TYPE_DYNAMIC = 2
)

// RTMP 버전
const (
	RTMP_VERSION = 0x03
)

// 핸드셰이크 상수
const (
	HANDSHAKE_SIZE = 1536
)

// 기본 청크 크기
const (
	DEFAULT_CHUNK_SIZE = 128
	MAX_CHUNK_SIZE     = 0xFFFFFF
)

const (
	DEFAULT_WINDOW_SIZE          = 2500000
	DEFAULT_ACK_INTERVAL         = 120 * 1024
	SWF_VERIFICATION_LENGTH      = 42
	EXTENDED_TIMESTAMP_THRESHOLD = 0xFFFFFF
)

// Fmt 타입 상수 (청크 헤더 형식)
const (
	FMT_TYPE_0 = 0 // 11바이트 - 전체 메시지 헤더
	FMT_TYPE_1 = 1 // 7바이트 - 스트림 ID 제외
	FMT_TYPE_2 = 2 // 3바이트 - 타임스탬프만
	FMT_TYPE_3 = 3 // 0바이트 - 헤더 없음
)

// Method names with special meaning to the dispatcher
const (
	methodResult    = "_result"
	methodError     = "_error"
	methodOnStatus  = "onStatus"
	methodOnBWCheck = "onBWCheck"
	methodOnBWDone  = "onBWDone"
	methodConnect   = "connect"
)
