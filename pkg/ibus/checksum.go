// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ibus

// ChecksumBytes computes the iBus checksum of data: 0xFFFF minus every byte,
// with 16-bit wraparound. Pass the frame without its two trailing bytes.
func ChecksumBytes(data []byte) uint16 {
	sum := uint16(checksumInitial)
	for _, b := range data {
		sum -= uint16(b)
	}
	return sum
}

// Checksum computes the iBus checksum over the first n bytes of buf.
func Checksum(buf Buffer, n int) (uint16, error) {
	sum := uint16(checksumInitial)
	for i := 0; i < n; i++ {
		b, err := buf.At(i)
		if err != nil {
			return 0, err
		}
		sum -= uint16(b)
	}
	return sum, nil
}
