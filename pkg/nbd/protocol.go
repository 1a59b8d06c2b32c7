package nbd

// Wire constants from the NBD protocol (see nbd.git/doc/proto.md). Only the
// fixed newstyle handshake and the request/reply subset this host needs are
// implemented.
const (
	negotiationMagic    uint64 = 0x4e42444d41474943 // "NBDMAGIC"
	iHaveOptMagic       uint64 = 0x49484156454F5054 // "IHAVEOPT"
	optionReplyMagic    uint64 = 0x3e889045565a9

	flagFixedNewstyle uint16 = 1 << 0
	flagNoZeroes      uint16 = 1 << 1

	optExportName uint32 = 1
	optAbort      uint32 = 2
	optGo         uint32 = 7

	repAck uint32 = 1

	// Transmission-phase magics.
	requestMagic uint32 = 0x25609513
	replyMagic   uint32 = 0x67446698

	cmdRead        uint16 = 0
	cmdWrite       uint16 = 1
	cmdDisc        uint16 = 2
	cmdFlush       uint16 = 3
	cmdTrim        uint16 = 4
	cmdWriteZeroes uint16 = 6

	cmdFlagFUA     uint16 = 1 << 0
	cmdFlagNoHole  uint16 = 1 << 1

	// Transmission flags advertised during negotiation.
	transmitHasFlags   uint16 = 1 << 0
	transmitReadOnly   uint16 = 1 << 1
	transmitSendFlush  uint16 = 1 << 2
	transmitSendFUA    uint16 = 1 << 3
	transmitRotational uint16 = 1 << 4
	transmitSendTrim   uint16 = 1 << 5
	transmitMultiConn  uint16 = 1 << 8
	transmitSendWriteZeroes uint16 = 1 << 6

	errOK      uint32 = 0
	errIO      uint32 = 5
	errNoSpace uint32 = 28
	errInval   uint32 = 22
)
