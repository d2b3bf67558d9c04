package audio

import "math"

// UnityGain Q15 定点下的 0 dB 增益 (32767/32768)
const UnityGain int16 = 32767

// q15VolumeScale 音量衰减的 Q15 定点因子表
// 100 个值：静音加上 [49, 48.5, ... 0.5, 0] dB 的衰减
// dB 到 PCM 缩放因子：floating_point_scale_factor = 2^(-db/6.014)
// 浮点到 Q15 定点：q15_scale_factor = floating_point_scale_factor * 2^15
var q15VolumeScale = [100]int16{
	0, 116, 122, 130, 137, 146, 154, 163, 173, 183, 194, 206, 218, 231, 244,
	259, 274, 291, 308, 326, 345, 366, 388, 411, 435, 461, 488, 517, 548, 580,
	615, 651, 690, 731, 774, 820, 868, 920, 974, 1032, 1094, 1158, 1227, 1300, 1377,
	1459, 1545, 1637, 1734, 1837, 1946, 2061, 2184, 2313, 2450, 2596, 2750, 2913, 3085, 3269,
	3462, 3668, 3885, 4116, 4360, 4619, 4893, 5183, 5490, 5816, 6161, 6527, 6914, 7324, 7758,
	8218, 8706, 9222, 9770, 10349, 10963, 11613, 12302, 13032, 13805, 14624, 15491, 16410, 17384, 18415,
	19508, 20665, 21891, 23189, 24565, 26022, 27566, 29201, 30933, 32767,
}

// GainForVolume 将 [0,1] 的线性音量映射到 Q15 增益因子
// 按 round(volume*99) 取表项并钳位到表界，0 映射为静音，1 映射为 0 dB
func GainForVolume(volume float64) int16 {
	idx := int(math.Round(volume * float64(len(q15VolumeScale)-1)))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(q15VolumeScale) {
		idx = len(q15VolumeScale) - 1
	}
	return q15VolumeScale[idx]
}

// GainForRatio 将 [0,1] 的线性幅度比率映射到 Q15 增益因子
// 与 GainForVolume 不同，这里不经过 dB 表：比率 r 直接对应输出幅度的 r 倍，
// 供闪避等要求线性衰减的路径使用
func GainForRatio(ratio float64) int16 {
	if ratio <= 0 {
		return 0
	}
	if ratio >= 1 {
		return UnityGain
	}
	return int16(math.Round(ratio * float64(UnityGain)))
}

// ApplyGain 按 Q15 增益就地缩放 16bit 有符号样本
// (int32(sample) * int32(gain)) >> 15，截断取整
// 增益为 0 dB 时是空操作，调用方可据此跳过整个缩放阶段
func ApplyGain(samples []int16, gain int16) {
	if gain >= UnityGain {
		return
	}
	for i, s := range samples {
		samples[i] = int16((int32(s) * int32(gain)) >> 15)
	}
}

// ApplyGainPCM 对小端 16bit PCM 字节流就地应用 Q15 增益
// 末尾不足一个样本的字节保持原样
func ApplyGainPCM(buf []byte, gain int16) {
	if gain >= UnityGain {
		return
	}
	for i := 0; i+1 < len(buf); i += 2 {
		s := int16(buf[i]) | int16(buf[i+1])<<8
		s = int16((int32(s) * int32(gain)) >> 15)
		buf[i] = byte(s)
		buf[i+1] = byte(s >> 8)
	}
}

// saturateInt16 将 32 位累加结果饱和到 16bit 有符号范围
func saturateInt16(v int32) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
