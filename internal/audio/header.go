package audio

// mp3Channels reads the channel mode of the first MPEG frame header,
// skipping an ID3v2 tag. It returns 2 when no header is found.
func mp3Channels(data []byte) int {
	offset := 0
	if len(data) >= 10 && string(data[:3]) == "ID3" {
		size := int(data[6]&0x7f)<<21 | int(data[7]&0x7f)<<14 | int(data[8]&0x7f)<<7 | int(data[9]&0x7f)
		offset = 10 + size
	}

	for i := offset; i+3 < len(data); i++ {
		if data[i] != 0xff || data[i+1]&0xe0 != 0xe0 {
			continue
		}
		// Channel mode 0b11 is single channel.
		if data[i+3]>>6 == 0x3 {
			return 1
		}
		return 2
	}
	return 2
}
