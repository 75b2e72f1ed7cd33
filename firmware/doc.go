// Package firmware loads application images for upload.
//
// Two formats are accepted:
//   - Raw binary: the file is the image
//   - Intel HEX: data records are laid out from the lowest address, with gaps
//     filled with 0xFF; extended segment and linear address records are honoured
//
// Basic usage:
//
//	img, err := firmware.Load("app.hex")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = uploader.Transfer(ctx, img.Data, true)
package firmware
