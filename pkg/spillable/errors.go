package spillable

import "errors"

var ErrDuplicateName = errors.New("identifier name already allocated")
var ErrIndexOutOfRange = errors.New("index out of range")
var ErrInvalidLifecycleState = errors.New("invalid lifecycle state")
